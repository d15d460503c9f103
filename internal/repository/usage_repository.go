package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type UsageRepository struct {
	db  *pgxpool.Pool
	now func() time.Time
}

type DailyUsage struct {
	Date             time.Time `json:"date"`
	MessagesSent     int       `json:"messages_sent"`
	MessagesReceived int       `json:"messages_received"`
}

type UsageSummary struct {
	TenantID      string       `json:"tenant_id"`
	TodaySent     int          `json:"today_sent"`
	TodayReceived int          `json:"today_received"`
	MonthSent     int          `json:"month_sent"`
	MonthReceived int          `json:"month_received"`
	History       []DailyUsage `json:"history"`
}

func NewUsageRepository(db *pgxpool.Pool) *UsageRepository {
	return &UsageRepository{db: db, now: time.Now}
}

func (r *UsageRepository) today() string {
	return r.now().Format("2006-01-02")
}

// IncrementSent increments messages_sent for today
func (r *UsageRepository) IncrementSent(ctx context.Context, tenantID string) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO message_usage (tenant_id, date, messages_sent, messages_received)
		VALUES ($1, $2, 1, 0)
		ON CONFLICT (tenant_id, date)
		DO UPDATE SET messages_sent = message_usage.messages_sent + 1
	`, tenantID, r.today())
	return err
}

// IncrementReceived increments messages_received for today
func (r *UsageRepository) IncrementReceived(ctx context.Context, tenantID string) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO message_usage (tenant_id, date, messages_sent, messages_received)
		VALUES ($1, $2, 0, 1)
		ON CONFLICT (tenant_id, date)
		DO UPDATE SET messages_received = message_usage.messages_received + 1
	`, tenantID, r.today())
	return err
}

// GetTodayUsage returns today's counters; no row means zero.
func (r *UsageRepository) GetTodayUsage(ctx context.Context, tenantID string) (sent, received int, err error) {
	err = r.db.QueryRow(ctx, `
		SELECT messages_sent, messages_received
		FROM message_usage WHERE tenant_id = $1 AND date = $2
	`, tenantID, r.today()).Scan(&sent, &received)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, 0, nil
	}
	return sent, received, err
}

// GetMonthUsage returns this month's totals
func (r *UsageRepository) GetMonthUsage(ctx context.Context, tenantID string) (sent, received int, err error) {
	firstOfMonth := r.now().Format("2006-01") + "-01"
	err = r.db.QueryRow(ctx, `
		SELECT COALESCE(SUM(messages_sent), 0), COALESCE(SUM(messages_received), 0)
		FROM message_usage WHERE tenant_id = $1 AND date >= $2
	`, tenantID, firstOfMonth).Scan(&sent, &received)
	return sent, received, err
}

// GetUsageHistory returns last N days of usage
func (r *UsageRepository) GetUsageHistory(ctx context.Context, tenantID string, days int) ([]DailyUsage, error) {
	startDate := r.now().AddDate(0, 0, -days).Format("2006-01-02")
	rows, err := r.db.Query(ctx, `
		SELECT date, messages_sent, messages_received
		FROM message_usage
		WHERE tenant_id = $1 AND date >= $2
		ORDER BY date ASC
	`, tenantID, startDate)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	usage := []DailyUsage{}
	for rows.Next() {
		var u DailyUsage
		if err := rows.Scan(&u.Date, &u.MessagesSent, &u.MessagesReceived); err != nil {
			return nil, err
		}
		usage = append(usage, u)
	}
	return usage, rows.Err()
}

func (r *UsageRepository) Summary(ctx context.Context, tenantID string, days int) (*UsageSummary, error) {
	s := &UsageSummary{TenantID: tenantID}
	var err error
	if s.TodaySent, s.TodayReceived, err = r.GetTodayUsage(ctx, tenantID); err != nil {
		return nil, err
	}
	if s.MonthSent, s.MonthReceived, err = r.GetMonthUsage(ctx, tenantID); err != nil {
		return nil, err
	}
	if s.History, err = r.GetUsageHistory(ctx, tenantID, days); err != nil {
		return nil, err
	}
	return s, nil
}

// DailyTotals sums today's counters across tenants, for the daily log line.
func (r *UsageRepository) DailyTotals(ctx context.Context) (tenants, sent, received int, err error) {
	err = r.db.QueryRow(ctx, `
		SELECT COUNT(*), COALESCE(SUM(messages_sent), 0), COALESCE(SUM(messages_received), 0)
		FROM message_usage WHERE date = $1
	`, r.today()).Scan(&tenants, &sent, &received)
	return tenants, sent, received, err
}
