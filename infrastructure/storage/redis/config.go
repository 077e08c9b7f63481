// Package redis keeps completion reports in Redis as JSON strings with a
// sorted set index.
package redis

import (
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/felixgeelhaar/itinerary/domain/config"
)

// Config is the Redis endpoint plus the key layout of the store.
type Config struct {
	Address  string
	Password string
	DB       int

	// KeyPrefix namespaces the report keys and the index.
	KeyPrefix string

	// TTL expires reports; zero keeps them.
	TTL time.Duration

	MaxRetries   int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	PoolSize     int
}

// DefaultConfig reaches a local Redis on database zero.
func DefaultConfig() Config {
	return Config{
		Address:      "localhost:6379",
		KeyPrefix:    "itinerary:",
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
	}
}

// FromStorage overlays the storage section on DefaultConfig.
func FromStorage(sc config.StorageConfig) Config {
	c := DefaultConfig()
	if sc.Address != "" {
		c.Address = sc.Address
	}
	if ns := sc.KeyNamespace(); ns != "" {
		c.KeyPrefix = ns
	}
	c.Password = sc.Password
	c.DB = sc.DB
	c.TTL = sc.TTL.Duration()
	return c
}

func (c Config) options() *redis.Options {
	return &redis.Options{
		Addr:         c.Address,
		Password:     c.Password,
		DB:           c.DB,
		MaxRetries:   c.MaxRetries,
		DialTimeout:  c.DialTimeout,
		ReadTimeout:  c.ReadTimeout,
		WriteTimeout: c.WriteTimeout,
		PoolSize:     c.PoolSize,
	}
}
