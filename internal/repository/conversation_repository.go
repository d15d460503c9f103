package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"showroom_bot/internal/entities"
)

// ConversationRepository stores leads, conversation turns and the staff registry.
type ConversationRepository struct {
	db *pgxpool.Pool
}

func NewConversationRepository(db *pgxpool.Pool) *ConversationRepository {
	return &ConversationRepository{db: db}
}

// FindOrCreateLead is safe under concurrent deliveries for the same phone.
func (r *ConversationRepository) FindOrCreateLead(ctx context.Context, tenantID, phone string) (entities.LeadID, error) {
	var id entities.LeadID
	err := r.db.QueryRow(ctx, `
		INSERT INTO leads (tenant_id, phone) VALUES ($1, $2)
		ON CONFLICT (tenant_id, phone) DO UPDATE SET phone = EXCLUDED.phone
		RETURNING id
	`, tenantID, phone).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("find or create lead: %w", err)
	}
	return id, nil
}

func (r *ConversationRepository) AppendTurn(ctx context.Context, tenantID string, leadID entities.LeadID, turn entities.ConversationTurn) error {
	meta, err := json.Marshal(turn.Metadata)
	if err != nil {
		return fmt.Errorf("marshal turn metadata: %w", err)
	}
	createdAt := turn.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	_, err = r.db.Exec(ctx, `
		INSERT INTO conversation_turns (tenant_id, lead_id, role, text, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, tenantID, leadID, string(turn.Role), turn.Text, meta, createdAt)
	return err
}

// RecentTurns returns up to limit turns, oldest first.
func (r *ConversationRepository) RecentTurns(ctx context.Context, tenantID string, leadID entities.LeadID, limit int) ([]entities.ConversationTurn, error) {
	rows, err := r.db.Query(ctx, `
		SELECT role, text, metadata, created_at FROM conversation_turns
		WHERE tenant_id=$1 AND lead_id=$2
		ORDER BY id DESC LIMIT $3
	`, tenantID, leadID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	turns := []entities.ConversationTurn{}
	for rows.Next() {
		var (
			t    entities.ConversationTurn
			role string
			meta []byte
		)
		if err := rows.Scan(&role, &t.Text, &meta, &t.CreatedAt); err != nil {
			return nil, err
		}
		t.Role = entities.TurnRole(role)
		if len(meta) > 0 {
			_ = json.Unmarshal(meta, &t.Metadata)
		}
		turns = append(turns, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	slices.Reverse(turns)
	return turns, nil
}

// FindStaffByPhone matches the last digits of phone or alt_phone. Owners and admins win over other roles.
func (r *ConversationRepository) FindStaffByPhone(ctx context.Context, tenantID, phoneSuffix string) (*entities.StaffRecord, error) {
	var s entities.StaffRecord
	err := r.db.QueryRow(ctx, `
		SELECT id, tenant_id, name, phone, alt_phone, role, status FROM staff
		WHERE tenant_id=$1 AND status='active'
		  AND (RIGHT(regexp_replace(phone, '\D', '', 'g'), 10) = $2
		    OR RIGHT(regexp_replace(alt_phone, '\D', '', 'g'), 10) = $2)
		ORDER BY CASE WHEN role IN ('owner', 'admin') THEN 0 ELSE 1 END, id
		LIMIT 1
	`, tenantID, phoneSuffix).Scan(&s.ID, &s.TenantID, &s.Name, &s.Phone, &s.AltPhone, &s.Role, &s.Status)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// TenantStore joins the conversation and tenant repositories into one persistence collaborator.
type TenantStore struct {
	*ConversationRepository
	*TenantRepository
}

func NewTenantStore(db *pgxpool.Pool) *TenantStore {
	return &TenantStore{
		ConversationRepository: NewConversationRepository(db),
		TenantRepository:       NewTenantRepository(db),
	}
}
