package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"showroom_bot/internal/entities"
)

type ArticleRepository struct {
	db *pgxpool.Pool
}

func NewArticleRepository(db *pgxpool.Pool) *ArticleRepository {
	return &ArticleRepository{db: db}
}

func (r *ArticleRepository) SaveDraft(ctx context.Context, a *entities.Article) error {
	if a.Keywords == nil {
		a.Keywords = []string{}
	}
	return r.db.QueryRow(ctx, `
		INSERT INTO articles (tenant_id, title, body, tone, category, reference, keywords, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at
	`, a.TenantID, a.Title, a.Body, a.Tone, a.Category, a.Reference, a.Keywords, a.CreatedBy).Scan(&a.ID, &a.CreatedAt)
}

func (r *ArticleRepository) RecentDrafts(ctx context.Context, tenantID string, limit int) ([]entities.Article, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, tenant_id, title, body, tone, category, reference, keywords, created_by, created_at
		FROM articles WHERE tenant_id=$1
		ORDER BY created_at DESC LIMIT $2
	`, tenantID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	articles := []entities.Article{}
	for rows.Next() {
		var a entities.Article
		if err := rows.Scan(&a.ID, &a.TenantID, &a.Title, &a.Body, &a.Tone, &a.Category, &a.Reference, &a.Keywords, &a.CreatedBy, &a.CreatedAt); err != nil {
			return nil, err
		}
		articles = append(articles, a)
	}
	return articles, rows.Err()
}
