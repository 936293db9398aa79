package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"contenthub/internal/app"
	"contenthub/internal/config"
	"contenthub/internal/logging"
	"contenthub/internal/migrate"
	"contenthub/internal/remote"
	"contenthub/internal/repo"
	"contenthub/internal/server"
	"contenthub/internal/store"
	hubsdk "contenthub/sdk/go"
)

var rootCmd = &cobra.Command{
	Use:   "hub",
	Short: "Content Hub CLI",
	Long: `Content Hub tracks editorial work across five content types.
- Items: tweets, editorial pieces, TTD digests, podcast episodes and portfolio requests, each with its own status pipeline.
- Members: the team roster items are assigned to.
- Checkins: hourly snapshots of who is working on what.
- Version: every change bumps the dataset version; remote snapshots with an equal or newer version replace local data.
- Journal: every change is recorded; view it with 'hub log tail'.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if err := godotenv.Load(filepath.Join(workspace, ".env")); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("load .env: %w", err)
		}
		return nil
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("HUB")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor", "", "name recorded on activity entries")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("no-seed", false, "do not install starter data into an empty workspace")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor", rootCmd.PersistentFlags().Lookup("actor"))
	_ = viper.BindPFlag("log-level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("no-seed", rootCmd.PersistentFlags().Lookup("no-seed"))
}

func registerCommands() {
	rootCmd.AddCommand(itemCmd())
	rootCmd.AddCommand(memberCmd())
	rootCmd.AddCommand(checkinCmd())
	rootCmd.AddCommand(statsCmd())
	rootCmd.AddCommand(overdueCmd())
	rootCmd.AddCommand(upcomingCmd())
	rootCmd.AddCommand(staleCmd())
	rootCmd.AddCommand(exportCmd())
	rootCmd.AddCommand(importCmd())
	rootCmd.AddCommand(syncCmd())
	rootCmd.AddCommand(pushCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(dbCmd())
	rootCmd.AddCommand(serveCmd())
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{
		Use:   "config",
		Short: "Inspect workspace config",
		Long:  "Config lives in hub.yml at the workspace root: storage backend, remote sync url, server address, seeding, view defaults and webhooks.",
	}
	cfg.AddCommand(configShowCmd())
	cfg.AddCommand(configValidateCmd())
	cfg.AddCommand(configInitCmd())
	return cfg
}

func configShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show effective config",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadOptional(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(cfg)
			}
			out, err := cfg.YAML()
			if err != nil {
				return err
			}
			fmt.Print(out)
			return nil
		},
	}
}

func configValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate hub.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := config.Load(viper.GetString("workspace"))
			if viper.GetBool("json") {
				return printJSON(map[string]any{"ok": err == nil, "error": fmt.Sprint(err)})
			}
			if err != nil {
				return err
			}
			fmt.Println("config OK")
			return nil
		},
	}
}

func configInitCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default hub.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.Path(viper.GetString("workspace"))
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
				return err
			}
			fmt.Println("wrote", path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	return cmd
}

func exportCmd() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the dataset as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withHub(cmd.Context(), func(ctx context.Context, h *app.Hub) error {
				data, err := json.MarshalIndent(h.Store.Export(), "", "  ")
				if err != nil {
					return err
				}
				if out == "" || out == "-" {
					fmt.Println(string(data))
					return nil
				}
				return os.WriteFile(out, append(data, '\n'), 0o644)
			})
		},
	}
	cmd.Flags().StringVarP(&out, "output", "o", "", "write to file instead of stdout")
	return cmd
}

func importCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Replace the dataset with an exported JSON file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readImport(args[0])
			if err != nil {
				return err
			}
			return withHub(cmd.Context(), func(ctx context.Context, h *app.Hub) error {
				v, err := h.Store.Import(ctx, data)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(server.ImportResponse{Version: v, Items: len(data.Items)})
				}
				fmt.Printf("imported %d items, version %d\n", len(data.Items), v)
				return nil
			})
		},
	}
	return cmd
}

func readImport(path string) (store.ImportData, error) {
	var data store.ImportData
	raw, err := os.ReadFile(path)
	if err != nil {
		return data, err
	}
	if err := json.Unmarshal(raw, &data); err != nil {
		return data, fmt.Errorf("parse %s: %w", path, err)
	}
	return data, nil
}

func syncCmd() *cobra.Command {
	var url string
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Fetch the remote snapshot once and reconcile",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withHub(cmd.Context(), func(ctx context.Context, h *app.Hub) error {
				if url != "" {
					h.Config.Sync.URL = url
				}
				syncer, ok := h.Syncer(nil)
				if !ok {
					return fmt.Errorf("no sync url; set sync.url in hub.yml or pass --url")
				}
				outcome := syncer.SyncOnce(ctx)
				if viper.GetBool("json") {
					return printJSON(map[string]any{"outcome": outcome, "version": h.Store.Version()})
				}
				fmt.Printf("%s (version %d)\n", outcome, h.Store.Version())
				if outcome == store.OutcomeUnavailable {
					return remote.ErrSyncUnavailable
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&url, "url", "", "snapshot url (overrides sync.url)")
	return cmd
}

func pushCmd() *cobra.Command {
	var basePath string
	cmd := &cobra.Command{
		Use:   "push <server-url>",
		Short: "Replace a running hub's dataset with the local one",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withHub(cmd.Context(), func(ctx context.Context, h *app.Hub) error {
				exp := h.Store.Export()
				client := hubsdk.New(args[0])
				client.BasePath = basePath
				res, err := client.Import(ctx, store.ImportData{
					Version:  exp.Version,
					Items:    exp.Items,
					Members:  exp.Members,
					Checkins: exp.Checkins,
				})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(res)
				}
				fmt.Printf("pushed %d items, remote version %d\n", res.Items, res.Version)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path")
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	var noSync bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			log := logging.NewLoggerWithService("hub")
			log.SetLevel(logging.ParseLevel(viper.GetString("log-level")))
			return withHubLog(cmd.Context(), log, func(ctx context.Context, h *app.Hub) error {
				if addr == "" {
					addr = h.Config.Server.Addr
				}
				if basePath == "" {
					basePath = h.Config.Server.BasePath
				}
				handler, err := server.New(server.Config{
					Store:        h.Store,
					Repo:         h.Repo,
					Metrics:      h.Metrics,
					Log:          log,
					BasePath:     basePath,
					UpcomingDays: h.Config.Views.UpcomingDays,
					StaleDays:    h.Config.Views.StaleDays,
				})
				if err != nil {
					return err
				}
				if !noSync {
					if syncer, ok := h.Syncer(nil); ok {
						go syncer.Run(ctx)
					}
				}
				server.StartWebhookDispatcher(ctx, server.WebhookOptions{
					Repo:    h.Repo,
					Hooks:   h.Config.Webhooks,
					Log:     log,
					Metrics: h.Metrics,
				})
				srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
				go func() {
					<-ctx.Done()
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					srv.Shutdown(shutdownCtx)
				}()
				log.WithFields(logging.Fields{"addr": addr, "base_path": basePath}).Info("serving content hub api")
				fmt.Printf("Serving Content Hub API on http://%s%s (OpenAPI at %s/openapi.json, Swagger UI at /docs)\n", addr, basePath, basePath)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from hub.yml)")
	cmd.Flags().StringVar(&basePath, "base-path", "", "API base path (default from hub.yml)")
	cmd.Flags().BoolVar(&noSync, "no-sync", false, "do not poll the remote snapshot")
	return cmd
}

func logCmd() *cobra.Command {
	log := &cobra.Command{
		Use:   "log",
		Short: "Inspect the change journal",
	}
	log.AddCommand(logTailCmd())
	return log
}

func logTailCmd() *cobra.Command {
	var n int
	var f repo.EventFilter
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withHub(cmd.Context(), func(ctx context.Context, h *app.Hub) error {
				events, err := h.Repo.LatestEvents(ctx, n, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(events)
				}
				tw := newTable()
				tw.AppendHeader(table.Row{"ID", "TS", "Version", "Type", "Entity", "Actor"})
				for _, e := range events {
					entity := e.EntityKind
					if e.EntityID != "" {
						entity += "/" + e.EntityID
					}
					tw.AppendRow(table.Row{e.ID, e.TS, e.Version, e.Type, entity, e.Actor})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	cmd.Flags().StringVar(&f.Type, "type", "", "event type filter")
	cmd.Flags().StringVar(&f.EntityKind, "entity-kind", "", "entity kind")
	cmd.Flags().StringVar(&f.EntityID, "entity-id", "", "entity id")
	return cmd
}

func dbCmd() *cobra.Command {
	d := &cobra.Command{
		Use:   "db",
		Short: "Inspect the workspace database",
	}
	d.AddCommand(dbStatusCmd())
	return d
}

func dbStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show schema version and stored blobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withHub(cmd.Context(), func(ctx context.Context, h *app.Hub) error {
				schema, err := migrate.Check(ctx, h.DB)
				if err != nil {
					return err
				}
				keys, err := h.Repo.Keys(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{
						"backend": h.Config.Storage.Backend,
						"schema":  schema,
						"version": h.Store.Version(),
						"keys":    keys,
					})
				}
				fmt.Printf("backend %s, schema %d/%d, dataset version %d\n", h.Config.Storage.Backend, schema.Current, schema.Latest, h.Store.Version())
				tw := newTable()
				tw.AppendHeader(table.Row{"Key", "Bytes", "Updated"})
				for _, k := range keys {
					tw.AppendRow(table.Row{k.Key, k.Size, k.UpdatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
}

// --- helpers ---

func withHub(ctx context.Context, fn func(context.Context, *app.Hub) error) error {
	log := logging.NewLogger()
	log.SetLevel(logging.ParseLevel(viper.GetString("log-level")))
	return withHubLog(ctx, log, fn)
}

func withHubLog(ctx context.Context, log logging.Logger, fn func(context.Context, *app.Hub) error) error {
	h, err := app.Open(ctx, viper.GetString("workspace"), app.Options{
		Log:    log,
		NoSeed: viper.GetBool("no-seed"),
	})
	if err != nil {
		return err
	}
	defer h.Close()
	if err := fn(ctx, h); err != nil {
		return err
	}
	if err := h.Store.LastPersistError(); err != nil {
		return fmt.Errorf("change applied in memory but not saved: %w", err)
	}
	return nil
}

func newTable() table.Writer {
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	return tw
}

func printJSONOrTable(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
