package usecases

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"showroom_bot/internal/entities"
	"showroom_bot/internal/interfaces"
)

// TemplateResponder answers without the reasoning provider, from the intent and
// a plain inventory lookup. It never calls tools with side effects.
type TemplateResponder struct {
	inventory interfaces.Inventory
}

func NewTemplateResponder(inv interfaces.Inventory) *TemplateResponder {
	return &TemplateResponder{inventory: inv}
}

// IsPureGreeting reports whether the message is only a greeting.
func IsPureGreeting(in Intent) bool {
	return in.Name == IntentGreeting && in.Words <= 3
}

// Respond picks a template by intent. Priority follows the intent, then the inventory lookup.
func (t *TemplateResponder) Respond(ctx context.Context, tenant *entities.Tenant, in Intent) string {
	switch in.Name {
	case IntentGreeting:
		return t.Greeting(tenant)
	case IntentLocation:
		return t.location(tenant)
	case IntentPrice, IntentAvailability, IntentPhoto:
		return t.inventoryAnswer(ctx, tenant, in)
	case IntentFinancing:
		return "💳 *Simulasi Kredit*\n\nKami bantu hitung cicilan dengan DP mulai 20% dan tenor 12–60 bulan.\nSebutkan unit yang diminati dan rencana DP-nya ya." + contactLine(tenant)
	case IntentTestDrive:
		return "🚗 *Test Drive*\n\nSilakan kirim unit, nama, dan jadwal yang diinginkan (tanggal & jam). Tim kami akan konfirmasi." + contactLine(tenant)
	case IntentTradeIn:
		return "🔄 *Tukar Tambah*\n\nKirim merek, tipe, tahun, dan kilometer mobil Anda untuk estimasi harga." + contactLine(tenant)
	}
	return t.defaultResponse(tenant)
}

// Greeting returns the tenant welcome with its name and contact number.
func (t *TemplateResponder) Greeting(tenant *entities.Tenant) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("👋 *Selamat datang di %s!*\n\n", tenant.DisplayName))
	if tenant.WelcomeMessage != "" {
		sb.WriteString(tenant.WelcomeMessage)
	} else {
		sb.WriteString("Saya asisten virtual showroom. Tanyakan stok, harga, foto, kredit, atau jadwal test drive.")
	}
	sb.WriteString(contactLine(tenant))
	return sb.String()
}

func (t *TemplateResponder) location(tenant *entities.Tenant) string {
	if tenant.Address == "" {
		return fmt.Sprintf("📍 Untuk alamat %s silakan hubungi admin.", tenant.DisplayName) + contactLine(tenant)
	}
	return fmt.Sprintf("📍 *%s*\n%s", tenant.DisplayName, tenant.Address) + contactLine(tenant)
}

func (t *TemplateResponder) inventoryAnswer(ctx context.Context, tenant *entities.Tenant, in Intent) string {
	if t.inventory == nil {
		return t.defaultResponse(tenant)
	}

	q := entities.CarQuery{
		Brand:    in.Entities["brand"],
		Model:    in.Entities["model"],
		MaxPrice: in.Budget(),
		Limit:    5,
	}
	if y, err := strconv.Atoi(in.Entities["year"]); err == nil {
		q.MinYear = y
	}

	cars, err := t.inventory.SearchCars(ctx, tenant.ID, q)
	if err != nil {
		log.Warn().Err(err).Str("tenant", tenant.ID).Msg("Template inventory lookup failed")
		return t.defaultResponse(tenant)
	}
	if len(cars) == 0 {
		return "❌ Maaf, unit yang dicari sedang tidak tersedia." + contactLine(tenant)
	}

	var sb strings.Builder
	sb.WriteString("🔍 *Unit tersedia:*\n\n")
	for _, c := range cars {
		sb.WriteString(FormatCarLine(c))
		sb.WriteString("\n")
	}
	if in.Name == IntentPhoto {
		sb.WriteString("\nUntuk foto unit, silakan hubungi admin kami.")
	}
	sb.WriteString(contactLine(tenant))
	return sb.String()
}

func (t *TemplateResponder) defaultResponse(tenant *entities.Tenant) string {
	return fmt.Sprintf("🙏 Terima kasih sudah menghubungi %s. Pesan Anda akan dibalas oleh tim kami.", tenant.DisplayName) + contactLine(tenant)
}

// Apology is used when the reasoning loop fails after it started.
func Apology(tenant *entities.Tenant) string {
	return "🙏 Mohon maaf, sistem kami sedang mengalami kendala." + contactLine(tenant)
}

// HumanFallback replaces a reply that failed the integrity check twice.
func HumanFallback(tenant *entities.Tenant) string {
	return "🙏 Mohon maaf, permintaan Anda akan kami teruskan ke tim sales agar dibantu langsung." + contactLine(tenant)
}

// FormatCarLine renders one listing line with its reference code.
func FormatCarLine(c entities.Car) string {
	line := fmt.Sprintf("• [%s] %s %d – %s", c.Code, c.Title(), c.Year, FormatRupiah(c.Price))
	if c.Transmission != "" {
		line += ", " + c.Transmission
	}
	if c.MileageKm > 0 {
		line += fmt.Sprintf(", %d km", c.MileageKm)
	}
	return line
}

func contactLine(tenant *entities.Tenant) string {
	if tenant.ContactPhone == "" {
		return ""
	}
	return "\n\n📞 Admin: " + tenant.ContactPhone
}
