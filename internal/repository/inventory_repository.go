package repository

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"showroom_bot/internal/entities"
)

const carColumns = "code, tenant_id, brand, model, variant, year, price, transmission, mileage_km, color, status, description, photos"

type InventoryRepository struct {
	db *pgxpool.Pool
}

func NewInventoryRepository(db *pgxpool.Pool) *InventoryRepository {
	return &InventoryRepository{db: db}
}

// buildSearch returns the SQL and args for a car search. Only available cars are listed.
func buildSearch(tenantID string, q entities.CarQuery) (string, []any) {
	where := []string{"tenant_id = $1", "status = 'available'"}
	args := []any{tenantID}

	add := func(clause string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(clause, len(args)))
	}
	if q.Brand != "" {
		add("brand ILIKE $%d", q.Brand)
	}
	if q.Model != "" {
		add("model ILIKE $%d", "%"+q.Model+"%")
	}
	if q.MaxPrice > 0 {
		add("price <= $%d", q.MaxPrice)
	}
	if q.MinYear > 0 {
		add("year >= $%d", q.MinYear)
	}
	if q.Transmission != "" {
		add("transmission ILIKE $%d", q.Transmission)
	}

	limit := q.Limit
	if limit <= 0 || limit > 20 {
		limit = 5
	}
	args = append(args, limit)

	sql := fmt.Sprintf("SELECT %s FROM cars WHERE %s ORDER BY year DESC, price ASC LIMIT $%d",
		carColumns, strings.Join(where, " AND "), len(args))
	return sql, args
}

func (r *InventoryRepository) SearchCars(ctx context.Context, tenantID string, q entities.CarQuery) ([]entities.Car, error) {
	sql, args := buildSearch(tenantID, q)
	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanCars(rows)
}

func (r *InventoryRepository) CarByCode(ctx context.Context, tenantID, code string) (*entities.Car, error) {
	rows, err := r.db.Query(ctx, "SELECT "+carColumns+" FROM cars WHERE tenant_id=$1 AND code ILIKE $2", tenantID, code)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cars, err := scanCars(rows)
	if err != nil {
		return nil, err
	}
	if len(cars) == 0 {
		return nil, fmt.Errorf("car %s: %w", code, entities.ErrNotFound)
	}
	return &cars[0], nil
}

func (r *InventoryRepository) CountAvailable(ctx context.Context, tenantID string) (int, error) {
	var n int
	err := r.db.QueryRow(ctx, "SELECT COUNT(*) FROM cars WHERE tenant_id=$1 AND status='available'", tenantID).Scan(&n)
	return n, err
}

// BrandSummary counts available cars per brand.
func (r *InventoryRepository) BrandSummary(ctx context.Context, tenantID string) (map[string]int, error) {
	rows, err := r.db.Query(ctx, `
		SELECT brand, COUNT(*) FROM cars WHERE tenant_id=$1 AND status='available' GROUP BY brand
	`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[string]int{}
	for rows.Next() {
		var brand string
		var n int
		if err := rows.Scan(&brand, &n); err != nil {
			return nil, err
		}
		out[brand] = n
	}
	return out, rows.Err()
}

// ImportCars parses a CSV and upserts every row in one transaction.
func (r *InventoryRepository) ImportCars(ctx context.Context, tenantID string, csvData io.Reader) (int, error) {
	cars, err := ParseCarCSV(csvData)
	if err != nil {
		return 0, err
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	for i, c := range cars {
		_, err := tx.Exec(ctx, `
			INSERT INTO cars (tenant_id, code, brand, model, variant, year, price, transmission, mileage_km, color, status, description, photos, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, NOW())
			ON CONFLICT (tenant_id, code) DO UPDATE
			SET brand = EXCLUDED.brand,
			    model = EXCLUDED.model,
			    variant = EXCLUDED.variant,
			    year = EXCLUDED.year,
			    price = EXCLUDED.price,
			    transmission = EXCLUDED.transmission,
			    mileage_km = EXCLUDED.mileage_km,
			    color = EXCLUDED.color,
			    status = EXCLUDED.status,
			    description = EXCLUDED.description,
			    photos = EXCLUDED.photos,
			    updated_at = NOW()
		`, tenantID, c.Code, c.Brand, c.Model, c.Variant, c.Year, c.Price, c.Transmission, c.MileageKm, c.Color, c.Status, c.Description, c.Photos)
		if err != nil {
			return 0, fmt.Errorf("row %d (%s) upsert failed: %w", i+1, c.Code, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return len(cars), nil
}

func scanCars(rows pgx.Rows) ([]entities.Car, error) {
	cars := []entities.Car{}
	for rows.Next() {
		var c entities.Car
		err := rows.Scan(&c.Code, &c.TenantID, &c.Brand, &c.Model, &c.Variant, &c.Year, &c.Price,
			&c.Transmission, &c.MileageKm, &c.Color, &c.Status, &c.Description, &c.Photos)
		if err != nil {
			return nil, err
		}
		cars = append(cars, c)
	}
	if err := rows.Err(); err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}
	return cars, nil
}
