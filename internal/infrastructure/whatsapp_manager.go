package infrastructure

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
)

// WhatsAppManager manages per-tenant WhatsApp clients and routes outbound sends to them.
type WhatsAppManager struct {
	clients map[string]*WhatsAppClient
	mu      sync.RWMutex
	baseDir string

	// HandlerFactory builds the event handler registered on each new client.
	HandlerFactory func(tenantID string) func(interface{})
}

func NewWhatsAppManager(baseDir string) *WhatsAppManager {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		log.Warn().Err(err).Str("dir", baseDir).Msg("Could not create devices directory")
	}

	return &WhatsAppManager{
		clients: make(map[string]*WhatsAppClient),
		baseDir: baseDir,
	}
}

func (m *WhatsAppManager) devicePath(tenantID string) string {
	return filepath.Join(m.baseDir, "tenant_"+tenantID+".db")
}

// GetClient returns the tenant's client or nil.
func (m *WhatsAppManager) GetClient(tenantID string) *WhatsAppClient {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.clients[tenantID]
}

func (m *WhatsAppManager) GetOrCreateClient(ctx context.Context, tenantID string) (*WhatsAppClient, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if client, exists := m.clients[tenantID]; exists {
		return client, nil
	}

	client, err := NewWhatsAppClient(ctx, m.devicePath(tenantID), tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to create WhatsApp client for tenant %s: %w", tenantID, err)
	}

	if m.HandlerFactory != nil {
		client.AddHandler(m.HandlerFactory(tenantID))
	}

	m.clients[tenantID] = client
	return client, nil
}

// ConnectClient connects the tenant's client, creating it if needed.
func (m *WhatsAppManager) ConnectClient(ctx context.Context, tenantID string) (*WhatsAppClient, error) {
	client, err := m.GetOrCreateClient(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if client.Client.IsConnected() {
		return client, nil
	}
	if err := client.Connect(); err != nil {
		return nil, fmt.Errorf("failed to connect WhatsApp for tenant %s: %w", tenantID, err)
	}
	return client, nil
}

// RestoreSessions reconnects every tenant that has a paired device store on disk.
func (m *WhatsAppManager) RestoreSessions(ctx context.Context) int {
	matches, err := filepath.Glob(filepath.Join(m.baseDir, "tenant_*.db"))
	if err != nil {
		return 0
	}

	restored := 0
	for _, path := range matches {
		tenantID := strings.TrimSuffix(strings.TrimPrefix(filepath.Base(path), "tenant_"), ".db")
		client, err := m.GetOrCreateClient(ctx, tenantID)
		if err != nil {
			log.Error().Err(err).Str("tenant", tenantID).Msg("Could not load WhatsApp device")
			continue
		}
		if !client.IsLoggedIn() {
			continue
		}
		if err := client.Connect(); err != nil {
			log.Error().Err(err).Str("tenant", tenantID).Msg("Could not reconnect WhatsApp session")
			continue
		}
		restored++
	}
	return restored
}

func (m *WhatsAppManager) LogoutClient(ctx context.Context, tenantID string) error {
	m.mu.Lock()
	client, exists := m.clients[tenantID]
	delete(m.clients, tenantID)
	m.mu.Unlock()

	if !exists || client == nil || !client.IsLoggedIn() {
		return nil
	}
	return client.Logout(ctx)
}

// ConnectedTenants returns tenants with a live, paired connection.
func (m *WhatsAppManager) ConnectedTenants() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var tenants []string
	for id, client := range m.clients {
		if client.IsConnected() {
			tenants = append(tenants, id)
		}
	}
	return tenants
}

// DisconnectAll disconnects all clients (for graceful shutdown)
func (m *WhatsAppManager) DisconnectAll() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, client := range m.clients {
		client.Disconnect()
	}
	m.clients = make(map[string]*WhatsAppClient)
}

func (m *WhatsAppManager) connected(tenantID string) (*WhatsAppClient, error) {
	client := m.GetClient(tenantID)
	if client == nil || !client.IsConnected() {
		return nil, fmt.Errorf("whatsapp not connected for tenant %s", tenantID)
	}
	return client, nil
}

func (m *WhatsAppManager) SendText(ctx context.Context, tenantID, phone, text string) error {
	client, err := m.connected(tenantID)
	if err != nil {
		return err
	}
	return client.SendText(ctx, phone, text)
}

func (m *WhatsAppManager) SendMedia(ctx context.Context, tenantID, phone, mediaURL, caption string) error {
	client, err := m.connected(tenantID)
	if err != nil {
		return err
	}
	return client.SendMedia(ctx, phone, mediaURL, caption)
}

func (m *WhatsAppManager) MarkRead(ctx context.Context, tenantID, phone string, messageIDs []string) error {
	client, err := m.connected(tenantID)
	if err != nil {
		return err
	}
	return client.MarkRead(ctx, phone, messageIDs)
}
