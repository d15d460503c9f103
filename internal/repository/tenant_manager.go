package repository

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"showroom_bot/internal/entities"
)

type TenantManager struct {
	db *pgxpool.Pool
}

func NewTenantManager(db *pgxpool.Pool) *TenantManager {
	return &TenantManager{db: db}
}

var tenantIDPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]{1,63}$`)

// SanitizeTenantID lowercases id and reports whether it is a valid tenant id.
func SanitizeTenantID(id string) (string, bool) {
	id = strings.ToLower(strings.TrimSpace(id))
	return id, tenantIDPattern.MatchString(id)
}

// ProvisionTenant writes the profile and registers the owner as active staff in one transaction.
func (t *TenantManager) ProvisionTenant(ctx context.Context, profile entities.Tenant, ownerName string) error {
	id, ok := SanitizeTenantID(profile.ID)
	if !ok {
		return fmt.Errorf("invalid tenant id %q", profile.ID)
	}

	tx, err := t.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	values := map[string]string{
		KeyDisplayName:  profile.DisplayName,
		KeyContactPhone: profile.ContactPhone,
		KeyAddress:      profile.Address,
		KeyNotifyPhone:  profile.NotifyPhone,
	}
	for key, value := range values {
		_, err := tx.Exec(ctx, `
			INSERT INTO tenant_config (tenant_id, key, value, updated_at)
			VALUES ($1, $2, $3, NOW())
			ON CONFLICT (tenant_id, key) DO UPDATE SET value=EXCLUDED.value, updated_at=NOW()
		`, id, key, value)
		if err != nil {
			return fmt.Errorf("failed to write %s: %w", key, err)
		}
	}

	if profile.ContactPhone != "" {
		_, err = tx.Exec(ctx, `
			INSERT INTO staff (tenant_id, name, phone, role, status)
			SELECT $1, $2, $3, 'owner', 'active'
			WHERE NOT EXISTS (SELECT 1 FROM staff WHERE tenant_id=$1 AND phone=$3)
		`, id, ownerName, profile.ContactPhone)
		if err != nil {
			return fmt.Errorf("failed to register owner: %w", err)
		}
	}

	return tx.Commit(ctx)
}

func (t *TenantManager) AddStaff(ctx context.Context, s *entities.StaffRecord) error {
	if s.Status == "" {
		s.Status = entities.StaffActive
	}
	return t.db.QueryRow(ctx, `
		INSERT INTO staff (tenant_id, name, phone, alt_phone, role, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`, s.TenantID, s.Name, s.Phone, s.AltPhone, s.Role, s.Status).Scan(&s.ID)
}

// SetStaffStatus activates or deactivates a staff record. Role changes take effect on the next message.
func (t *TenantManager) SetStaffStatus(ctx context.Context, tenantID string, staffID int64, status entities.StaffStatus) error {
	tag, err := t.db.Exec(ctx, "UPDATE staff SET status=$1 WHERE tenant_id=$2 AND id=$3", status, tenantID, staffID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return entities.ErrNotFound
	}
	return nil
}

func (t *TenantManager) ListStaff(ctx context.Context, tenantID string) ([]entities.StaffRecord, error) {
	rows, err := t.db.Query(ctx, `
		SELECT id, tenant_id, name, phone, alt_phone, role, status
		FROM staff WHERE tenant_id=$1 ORDER BY id
	`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	staff := []entities.StaffRecord{}
	for rows.Next() {
		var s entities.StaffRecord
		if err := rows.Scan(&s.ID, &s.TenantID, &s.Name, &s.Phone, &s.AltPhone, &s.Role, &s.Status); err != nil {
			return nil, err
		}
		staff = append(staff, s)
	}
	return staff, rows.Err()
}
