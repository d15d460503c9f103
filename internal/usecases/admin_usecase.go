package usecases

import (
	"context"
	"fmt"
	"io"

	"showroom_bot/internal/entities"
	"showroom_bot/internal/interfaces"
	"showroom_bot/internal/repository"
)

// AdminUsecase backs the ops API: tenant provisioning, persona config, staff
// registry, inventory upload and usage.
type AdminUsecase struct {
	tenants   *repository.TenantManager
	configs   *repository.TenantRepository
	inventory interfaces.Inventory
	brands    *repository.InventoryRepository
	usage     *repository.UsageRepository
	// OnTenantChanged drops cached tenant data after a write.
	OnTenantChanged func(tenantID string)
}

func NewAdminUsecase(tenants *repository.TenantManager, configs *repository.TenantRepository, inv interfaces.Inventory, brands *repository.InventoryRepository, usage *repository.UsageRepository) *AdminUsecase {
	return &AdminUsecase{tenants: tenants, configs: configs, inventory: inv, brands: brands, usage: usage}
}

func (u *AdminUsecase) changed(tenantID string) {
	if u.OnTenantChanged != nil {
		u.OnTenantChanged(tenantID)
	}
}

func (u *AdminUsecase) ProvisionTenant(ctx context.Context, profile entities.Tenant, ownerName string) error {
	id, ok := repository.SanitizeTenantID(profile.ID)
	if !ok {
		return &entities.ValidationError{Field: "id", Reason: "use 2-64 lowercase letters, digits, dash or underscore"}
	}
	profile.ID = id
	if err := u.tenants.ProvisionTenant(ctx, profile, ownerName); err != nil {
		return err
	}
	u.changed(id)
	return nil
}

func (u *AdminUsecase) SetConfig(ctx context.Context, tenantID, key, value string) error {
	switch key {
	case repository.KeyDisplayName, repository.KeyContactPhone, repository.KeyAddress, repository.KeyNotifyPhone, repository.KeyWelcomeMessage:
	default:
		return &entities.ValidationError{Field: "key", Reason: fmt.Sprintf("unknown config key %q", key)}
	}
	if err := u.configs.SetConfig(ctx, tenantID, key, value); err != nil {
		return err
	}
	u.changed(tenantID)
	return nil
}

func (u *AdminUsecase) GetAllConfigs(ctx context.Context, tenantID string) ([]repository.TenantConfig, error) {
	return u.configs.GetAllConfigs(ctx, tenantID)
}

func (u *AdminUsecase) AddStaff(ctx context.Context, s *entities.StaffRecord) error {
	if s.Phone == "" || s.Name == "" {
		return &entities.ValidationError{Field: "staff", Reason: "name and phone are required"}
	}
	if s.Status == "" {
		s.Status = entities.StaffActive
	}
	return u.tenants.AddStaff(ctx, s)
}

func (u *AdminUsecase) SetStaffStatus(ctx context.Context, tenantID string, staffID int64, status entities.StaffStatus) error {
	if status != entities.StaffActive && status != entities.StaffInactive {
		return &entities.ValidationError{Field: "status", Reason: "must be active or inactive"}
	}
	return u.tenants.SetStaffStatus(ctx, tenantID, staffID, status)
}

func (u *AdminUsecase) ListStaff(ctx context.Context, tenantID string) ([]entities.StaffRecord, error) {
	return u.tenants.ListStaff(ctx, tenantID)
}

// ImportInventory upserts a CSV sheet through the bulk class.
func (u *AdminUsecase) ImportInventory(ctx context.Context, tenantID string, csvData io.Reader) (int, error) {
	return u.inventory.ImportCars(ctx, tenantID, csvData)
}

func (u *AdminUsecase) InventorySummary(ctx context.Context, tenantID string) (map[string]int, error) {
	return u.brands.BrandSummary(ctx, tenantID)
}

func (u *AdminUsecase) Usage(ctx context.Context, tenantID string, days int) (*repository.UsageSummary, error) {
	if days <= 0 || days > 90 {
		days = 30
	}
	return u.usage.Summary(ctx, tenantID, days)
}
