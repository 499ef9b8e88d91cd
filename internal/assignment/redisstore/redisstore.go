// Package redisstore provides a Redis implementation of assignment.Slot.
package redisstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/redis/go-redis/v9"

	"github.com/linnemanlabs/dispatch/internal/assignment"
)

var tracer = otel.Tracer("github.com/linnemanlabs/dispatch/internal/assignment/redisstore")

var _ assignment.Slot = (*Store)(nil)

// Config selects the Redis server.
type Config struct {
	Addr     string
	Password string
	DB       int
	// Prefix is prepended to every key, e.g. "dispatch:".
	Prefix string
}

// Store keeps slot values in Redis without expiry.
type Store struct {
	client *redis.Client
	prefix string
}

// New connects to Redis and verifies the connection.
func New(ctx context.Context, c Config) (*Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         c.Addr,
		Password:     c.Password,
		DB:           c.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return &Store{client: client, prefix: c.Prefix}, nil
}

// Close releases the client.
func (s *Store) Close() error {
	return s.client.Close()
}

// Get returns the value stored under key.
func (s *Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	ctx, span := tracer.Start(ctx, "redisstore.Get", trace.WithAttributes(
		attribute.String("db.system", "redis"),
		attribute.String("db.operation.name", "GET"),
	))
	defer span.End()

	b, err := s.client.Get(ctx, s.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, false, fmt.Errorf("redis get %s: %w", key, err)
	}
	return b, true, nil
}

// Set stores value under key with no expiration.
func (s *Store) Set(ctx context.Context, key string, value []byte) error {
	ctx, span := tracer.Start(ctx, "redisstore.Set", trace.WithAttributes(
		attribute.String("db.system", "redis"),
		attribute.String("db.operation.name", "SET"),
	))
	defer span.End()

	if err := s.client.Set(ctx, s.prefix+key, value, 0).Err(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}
