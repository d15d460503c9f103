package usecases

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"showroom_bot/internal/entities"
	"showroom_bot/internal/interfaces"
	"showroom_bot/internal/resilience"
)

const (
	historyLimit = 10
	historyTTL   = 2 * time.Minute
)

// ContextBuilder assembles the message list sent to the reasoning provider.
type ContextBuilder struct {
	persistence interfaces.Persistence
	turns       *resilience.Cache
	tools       *ToolRegistry
}

func NewContextBuilder(p interfaces.Persistence, tools *ToolRegistry) *ContextBuilder {
	return &ContextBuilder{
		persistence: p,
		turns:       resilience.NewCache(historyTTL, 5*time.Minute),
		tools:       tools,
	}
}

func historyKey(tenantID string, leadID entities.LeadID) string {
	return resilience.Key("turns", tenantID, strconv.FormatInt(int64(leadID), 10))
}

// History returns the last turns of the lead, oldest first.
func (b *ContextBuilder) History(ctx context.Context, tenantID string, leadID entities.LeadID) ([]entities.ConversationTurn, error) {
	if leadID == 0 {
		return nil, nil
	}
	return resilience.GetOrLoad(ctx, b.turns, historyKey(tenantID, leadID), historyTTL, func(ctx context.Context) ([]entities.ConversationTurn, error) {
		return b.persistence.RecentTurns(ctx, tenantID, leadID, historyLimit)
	})
}

// Invalidate drops cached history once new turns were written.
func (b *ContextBuilder) Invalidate(tenantID string, leadID entities.LeadID) {
	b.turns.Delete(historyKey(tenantID, leadID))
}

// Build returns system prompt, history and the customer message.
func (b *ContextBuilder) Build(ctx context.Context, tenant *entities.Tenant, leadID entities.LeadID, intent Intent, text string) []entities.ChatMessage {
	msgs := []entities.ChatMessage{{Role: entities.ChatSystem, Content: b.SystemPrompt(tenant, intent)}}

	history, err := b.History(ctx, tenant.ID, leadID)
	if err != nil {
		log.Warn().Err(err).Str("tenant", tenant.ID).Int64("lead", int64(leadID)).Msg("History unavailable, continuing without it")
	}
	for _, t := range history {
		role := entities.ChatAssistant
		if t.Role == entities.TurnCustomer {
			role = entities.ChatUser
		}
		if strings.TrimSpace(t.Text) == "" {
			continue
		}
		msgs = append(msgs, entities.ChatMessage{Role: role, Content: t.Text})
	}

	return append(msgs, entities.ChatMessage{Role: entities.ChatUser, Content: text})
}

func (b *ContextBuilder) SystemPrompt(tenant *entities.Tenant, intent Intent) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Kamu adalah asisten penjualan %s, showroom mobil bekas.", tenant.DisplayName))
	if tenant.Address != "" {
		sb.WriteString(" Alamat: " + tenant.Address + ".")
	}
	if tenant.ContactPhone != "" {
		sb.WriteString(" Kontak admin: " + tenant.ContactPhone + ".")
	}
	sb.WriteString("\nJawab singkat, ramah, dalam bahasa pelanggan. Gunakan tool untuk semua data stok, harga, foto, kredit, test drive dan tukar tambah.\n")

	if b.tools != nil {
		sb.WriteString("\nTool tersedia:\n")
		for _, s := range b.tools.Schemas() {
			sb.WriteString("- " + s.Name + ": " + s.Description + "\n")
		}
	}

	sb.WriteString("\nATURAN WAJIB:\n")
	sb.WriteString("1. Jangan pernah menyatakan foto/gambar sudah, sedang, atau akan dikirim (dalam bentuk kalimat apa pun) kecuali tool " + ToolSendPhotos + " benar-benar dipanggil di percakapan ini.\n")
	sb.WriteString("2. Jangan pernah menyebut kode unit yang tidak berasal dari hasil tool di percakapan ini.\n")

	if intent.Name != "" && intent.Name != IntentGeneral {
		sb.WriteString(fmt.Sprintf("\nPerkiraan maksud pelanggan: %s (%.2f)", intent.Name, intent.Confidence))
		if len(intent.Entities) > 0 {
			keys := make([]string, 0, len(intent.Entities))
			for k := range intent.Entities {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			parts := make([]string, 0, len(keys))
			for _, k := range keys {
				parts = append(parts, k+"="+intent.Entities[k])
			}
			sb.WriteString(", entitas: " + strings.Join(parts, ", "))
		}
		sb.WriteString("\n")
	}
	return sb.String()
}
