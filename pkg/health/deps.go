// Copyright (c) 2012-2024 Eli Janssen
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package health

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

// Postgres returns a readiness check that pings the database at dsn, and a
// func releasing its pool. No connection is made until the check runs.
func Postgres(name, dsn string) (Check, func(), error) {
	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return Check{}, nil, fmt.Errorf("parsing %s url: %w", name, err)
	}
	poolCfg.MinConns = 0
	poolCfg.MaxConns = 2

	pool, err := pgxpool.NewWithConfig(context.Background(), poolCfg)
	if err != nil {
		return Check{}, nil, fmt.Errorf("creating %s pool: %w", name, err)
	}

	check := Check{
		Name: name,
		Check: func(ctx context.Context) error {
			return pool.Ping(ctx)
		},
	}
	return check, pool.Close, nil
}

// Redis returns a readiness check that pings the redis server at
// redisURL, and a func closing its client. Redis backs both the cache and
// the task broker, so it is registered once per url.
func Redis(name, redisURL string) (Check, func() error, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return Check{}, nil, fmt.Errorf("parsing %s url: %w", name, err)
	}
	opts.MaxRetries = 1

	rdb := redis.NewClient(opts)
	check := Check{
		Name: name,
		Check: func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		},
	}
	return check, rdb.Close, nil
}
