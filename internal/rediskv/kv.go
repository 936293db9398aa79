// Package rediskv stores the hub blobs in Redis so several machines can share
// one dataset.
package rediskv

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"contenthub/internal/logging"
)

type Options struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

// KV implements the store's durable key-value contract on a Redis client.
type KV struct {
	client *goredis.Client
	prefix string
}

// Connect creates a client and verifies the connection with a ping.
func Connect(ctx context.Context, opts Options, log logging.Logger) (*KV, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", opts.Addr, err)
	}
	if log != nil {
		log.WithFields(logging.Fields{"addr": opts.Addr, "db": opts.DB}).Info("redis connected")
	}
	return New(client, opts.Prefix), nil
}

func New(client *goredis.Client, prefix string) *KV {
	return &KV{client: client, prefix: prefix}
}

func (k *KV) key(name string) string { return k.prefix + name }

func (k *KV) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := k.client.Get(ctx, k.key(key)).Result()
	if errors.Is(err, goredis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (k *KV) Set(ctx context.Context, key, value string) error {
	return k.client.Set(ctx, k.key(key), value, 0).Err()
}

func (k *KV) Close() error { return k.client.Close() }
