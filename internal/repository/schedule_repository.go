package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"showroom_bot/internal/entities"
)

type ScheduleRepository struct {
	db *pgxpool.Pool
}

func NewScheduleRepository(db *pgxpool.Pool) *ScheduleRepository {
	return &ScheduleRepository{db: db}
}

func (r *ScheduleRepository) BookTestDrive(ctx context.Context, td *entities.TestDrive) error {
	return r.db.QueryRow(ctx, `
		INSERT INTO test_drives (tenant_id, lead_id, car_code, customer_name, phone, scheduled_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`, td.TenantID, td.LeadID, td.CarCode, td.CustomerName, td.Phone, td.ScheduledAt).Scan(&td.ID)
}

// UpcomingTestDrives lists bookings in [from, to), earliest first.
func (r *ScheduleRepository) UpcomingTestDrives(ctx context.Context, tenantID string, from, to time.Time) ([]entities.TestDrive, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, tenant_id, lead_id, car_code, customer_name, phone, scheduled_at
		FROM test_drives
		WHERE tenant_id=$1 AND scheduled_at >= $2 AND scheduled_at < $3
		ORDER BY scheduled_at ASC
	`, tenantID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	drives := []entities.TestDrive{}
	for rows.Next() {
		var td entities.TestDrive
		if err := rows.Scan(&td.ID, &td.TenantID, &td.LeadID, &td.CarCode, &td.CustomerName, &td.Phone, &td.ScheduledAt); err != nil {
			return nil, err
		}
		drives = append(drives, td)
	}
	return drives, rows.Err()
}
