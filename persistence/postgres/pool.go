package postgres

import (
	"context"
	"fmt"

	"github.com/formpulse/automate/config"
	"github.com/jackc/pgx/v5/pgxpool"
)

func NewPool(ctx context.Context, conf config.PostgresConfig) (*pgxpool.Pool, error) {
	connStr := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		conf.User, conf.Password, conf.Host, conf.Port, conf.Database, conf.SSLMode)

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}
