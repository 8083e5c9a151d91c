package config

import (
	"context"
	"crypto/tls"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisConfig locates the redis server.  Addr wins over Host/Port.
type RedisConfig struct {
	Addr     string `envconfig:"ADDR"`
	Host     string `envconfig:"HOST"`
	Port     string `envconfig:"PORT" default:"6379"`
	Password string `envconfig:"PASSWORD"`
	DB       int    `envconfig:"DB" default:"0"`
	TLS      bool   `envconfig:"TLS" default:"false"`
}

func (r RedisConfig) address() string {
	if r.Addr != "" {
		return r.Addr
	}
	host := r.Host
	if host == "" {
		host = "localhost"
	}
	return host + ":" + r.Port
}

// NewRedisClient connects to redis and pings it.  It returns nil when the
// server cannot be reached; callers disable caching, rate limiting and sweep
// locking in that case.
func NewRedisClient(cfg RedisConfig) *redis.Client {
	var tlsConf *tls.Config
	if cfg.TLS {
		tlsConf = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	client := redis.NewClient(&redis.Options{
		Addr:      cfg.address(),
		Password:  cfg.Password,
		DB:        cfg.DB,
		TLSConfig: tlsConf,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil
	}
	return client
}
