package infrastructure

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

type PostgresClient struct {
	Pool *pgxpool.Pool
}

func NewPostgresClient(ctx context.Context, connString string) (*PostgresClient, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("unable to parse connection string: %w", err)
	}

	// Pool configuration
	config.MaxConns = 10
	config.MinConns = 2
	config.MaxConnLifetime = time.Hour
	config.MaxConnIdleTime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	return &PostgresClient{Pool: pool}, nil
}

var migrations = []struct {
	name string
	sql  string
}{
	{"users", `
		CREATE TABLE IF NOT EXISTS users (
			id SERIAL PRIMARY KEY,
			username VARCHAR(50) UNIQUE NOT NULL,
			password_hash VARCHAR(255) NOT NULL,
			role VARCHAR(20) DEFAULT 'user',
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		);`},
	{"tenant_config", `
		CREATE TABLE IF NOT EXISTS tenant_config (
			tenant_id VARCHAR(64) NOT NULL,
			key VARCHAR(50) NOT NULL,
			value TEXT NOT NULL,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (tenant_id, key)
		);`},
	{"staff", `
		CREATE TABLE IF NOT EXISTS staff (
			id BIGSERIAL PRIMARY KEY,
			tenant_id VARCHAR(64) NOT NULL,
			name VARCHAR(255) NOT NULL,
			phone VARCHAR(32) NOT NULL,
			alt_phone VARCHAR(32) DEFAULT '',
			role VARCHAR(20) NOT NULL DEFAULT 'sales',
			status VARCHAR(20) NOT NULL DEFAULT 'active'
		);`},
	{"staff_phone_idx", `CREATE INDEX IF NOT EXISTS staff_tenant_phone_idx ON staff (tenant_id, phone);`},
	{"leads", `
		CREATE TABLE IF NOT EXISTS leads (
			id BIGSERIAL PRIMARY KEY,
			tenant_id VARCHAR(64) NOT NULL,
			phone VARCHAR(32) NOT NULL,
			name VARCHAR(255) DEFAULT '',
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			UNIQUE (tenant_id, phone)
		);`},
	{"conversation_turns", `
		CREATE TABLE IF NOT EXISTS conversation_turns (
			id BIGSERIAL PRIMARY KEY,
			tenant_id VARCHAR(64) NOT NULL,
			lead_id BIGINT NOT NULL REFERENCES leads(id) ON DELETE CASCADE,
			role VARCHAR(16) NOT NULL,
			text TEXT NOT NULL,
			metadata JSONB NOT NULL DEFAULT '{}',
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		);`},
	{"turns_lead_idx", `CREATE INDEX IF NOT EXISTS turns_lead_idx ON conversation_turns (tenant_id, lead_id, id DESC);`},
	{"cars", `
		CREATE TABLE IF NOT EXISTS cars (
			tenant_id VARCHAR(64) NOT NULL,
			code VARCHAR(32) NOT NULL,
			brand VARCHAR(64) NOT NULL,
			model VARCHAR(64) NOT NULL,
			variant VARCHAR(64) DEFAULT '',
			year INT NOT NULL,
			price BIGINT NOT NULL,
			transmission VARCHAR(16) DEFAULT '',
			mileage_km INT DEFAULT 0,
			color VARCHAR(32) DEFAULT '',
			status VARCHAR(16) NOT NULL DEFAULT 'available',
			description TEXT DEFAULT '',
			photos TEXT[] NOT NULL DEFAULT '{}',
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (tenant_id, code)
		);`},
	{"test_drives", `
		CREATE TABLE IF NOT EXISTS test_drives (
			id BIGSERIAL PRIMARY KEY,
			tenant_id VARCHAR(64) NOT NULL,
			lead_id BIGINT NOT NULL,
			car_code VARCHAR(32) NOT NULL,
			customer_name VARCHAR(255) DEFAULT '',
			phone VARCHAR(32) NOT NULL,
			scheduled_at TIMESTAMP NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		);`},
	{"articles", `
		CREATE TABLE IF NOT EXISTS articles (
			id BIGSERIAL PRIMARY KEY,
			tenant_id VARCHAR(64) NOT NULL,
			title VARCHAR(255) NOT NULL,
			body TEXT NOT NULL,
			tone VARCHAR(32) DEFAULT '',
			category VARCHAR(64) DEFAULT '',
			reference TEXT DEFAULT '',
			keywords TEXT[] NOT NULL DEFAULT '{}',
			created_by VARCHAR(32) DEFAULT '',
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		);`},
	{"message_usage", `
		CREATE TABLE IF NOT EXISTS message_usage (
			tenant_id VARCHAR(64) NOT NULL,
			date DATE NOT NULL,
			messages_sent INT NOT NULL DEFAULT 0,
			messages_received INT NOT NULL DEFAULT 0,
			PRIMARY KEY (tenant_id, date)
		);`},
}

// Migrate creates every table idempotently.
func (p *PostgresClient) Migrate(ctx context.Context) error {
	for _, m := range migrations {
		if _, err := p.Pool.Exec(ctx, m.sql); err != nil {
			return fmt.Errorf("migrate %s: %w", m.name, err)
		}
	}
	log.Info().Int("steps", len(migrations)).Msg("Database schema is up to date")
	return nil
}

func (p *PostgresClient) Close() {
	p.Pool.Close()
}
