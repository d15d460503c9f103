package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"showroom_bot/internal/entities"
)

// Tenant profile keys stored in tenant_config.
const (
	KeyDisplayName    = "display_name"
	KeyContactPhone   = "contact_phone"
	KeyAddress        = "address"
	KeyNotifyPhone    = "notify_phone"
	KeyWelcomeMessage = "welcome_message"
)

type TenantConfig struct {
	Key       string    `json:"key"`
	Value     string    `json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}

type TenantRepository struct {
	db *pgxpool.Pool
}

func NewTenantRepository(db *pgxpool.Pool) *TenantRepository {
	return &TenantRepository{db: db}
}

// GetConfig returns "" when the key is not set.
func (r *TenantRepository) GetConfig(ctx context.Context, tenantID, key string) (string, error) {
	var value string
	err := r.db.QueryRow(ctx, "SELECT value FROM tenant_config WHERE tenant_id=$1 AND key=$2", tenantID, key).Scan(&value)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", nil
		}
		return "", err
	}
	return value, nil
}

func (r *TenantRepository) SetConfig(ctx context.Context, tenantID, key, value string) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO tenant_config (tenant_id, key, value, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (tenant_id, key) DO UPDATE SET value=EXCLUDED.value, updated_at=NOW()
	`, tenantID, key, value)
	return err
}

func (r *TenantRepository) GetAllConfigs(ctx context.Context, tenantID string) ([]TenantConfig, error) {
	rows, err := r.db.Query(ctx, "SELECT key, value, updated_at FROM tenant_config WHERE tenant_id=$1 ORDER BY key", tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	configs := []TenantConfig{}
	for rows.Next() {
		var c TenantConfig
		if err := rows.Scan(&c.Key, &c.Value, &c.UpdatedAt); err != nil {
			return nil, err
		}
		configs = append(configs, c)
	}
	return configs, rows.Err()
}

// TenantProfile assembles the persona fields. A tenant without any config row is ErrNotFound.
func (r *TenantRepository) TenantProfile(ctx context.Context, tenantID string) (*entities.Tenant, error) {
	configs, err := r.GetAllConfigs(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("load tenant %s: %w", tenantID, err)
	}
	if len(configs) == 0 {
		return nil, fmt.Errorf("tenant %s: %w", tenantID, entities.ErrNotFound)
	}
	return profileFromConfigs(tenantID, configs), nil
}

func profileFromConfigs(tenantID string, configs []TenantConfig) *entities.Tenant {
	t := &entities.Tenant{ID: tenantID, DisplayName: tenantID}
	for _, c := range configs {
		switch c.Key {
		case KeyDisplayName:
			if c.Value != "" {
				t.DisplayName = c.Value
			}
		case KeyContactPhone:
			t.ContactPhone = c.Value
		case KeyAddress:
			t.Address = c.Value
		case KeyNotifyPhone:
			t.NotifyPhone = c.Value
		case KeyWelcomeMessage:
			t.WelcomeMessage = c.Value
		}
	}
	return t
}
