package usecases

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"showroom_bot/internal/entities"
	"showroom_bot/internal/interfaces"
)

// CustomerToolDeps are the collaborators the customer tools act on.
type CustomerToolDeps struct {
	Inventory  interfaces.Inventory
	Scheduling interfaces.Scheduling
	Media      interfaces.MediaResolver
	Outbound   Outbound
	Financing  *FinancingCalculator
	TradeIn    *TradeInAppraiser
	Location   *time.Location
	Now        func() time.Time
}

const (
	searchInventorySchema = `{
  "type": "object",
  "properties": {
    "brand": {"type": "string"},
    "model": {"type": "string"},
    "max_price": {"type": "integer", "minimum": 0},
    "min_year": {"type": "integer", "minimum": 1980},
    "transmission": {"type": "string"},
    "limit": {"type": "integer", "minimum": 1, "maximum": 10}
  }
}`
	carDetailSchema = `{
  "type": "object",
  "properties": {"code": {"type": "string", "minLength": 1}},
  "required": ["code"]
}`
	sendPhotosSchema = `{
  "type": "object",
  "properties": {
    "code": {"type": "string", "minLength": 1},
    "max_photos": {"type": "integer", "minimum": 1, "maximum": 10}
  },
  "required": ["code"]
}`
	financingSchema = `{
  "type": "object",
  "properties": {
    "code": {"type": "string"},
    "price": {"type": "integer", "minimum": 1},
    "down_payment": {"type": "integer", "minimum": 0},
    "down_payment_percent": {"type": "number", "minimum": 0, "maximum": 100},
    "tenor_months": {"type": "integer", "enum": [12, 24, 36, 48, 60]}
  },
  "anyOf": [{"required": ["code"]}, {"required": ["price"]}]
}`
	testDriveSchema = `{
  "type": "object",
  "properties": {
    "code": {"type": "string", "minLength": 1},
    "customer_name": {"type": "string", "minLength": 1},
    "date": {"type": "string", "pattern": "^\\d{4}-\\d{2}-\\d{2}$"},
    "time": {"type": "string", "pattern": "^\\d{2}:\\d{2}$"}
  },
  "required": ["code", "customer_name", "date", "time"]
}`
	tradeInSchema = `{
  "type": "object",
  "properties": {
    "brand": {"type": "string", "minLength": 1},
    "model": {"type": "string"},
    "year": {"type": "integer", "minimum": 1980},
    "mileage_km": {"type": "integer", "minimum": 0}
  },
  "required": ["brand", "year"]
}`
)

// RegisterCustomerTools declares the tool set of the customer engine.
func RegisterCustomerTools(reg *ToolRegistry, d CustomerToolDeps) error {
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Location == nil {
		d.Location = time.FixedZone("WIB", 7*3600)
	}
	if d.Financing == nil {
		d.Financing = NewFinancingCalculator()
	}
	if d.TradeIn == nil {
		d.TradeIn = NewTradeInAppraiser(d.Inventory)
	}
	t := &customerTools{d}

	defs := []struct {
		name, desc, schema string
		sideEffect         bool
		h                  ToolHandler
	}{
		{ToolSearchInventory, "Cari unit mobil yang tersedia berdasarkan merek, model, harga maksimal, tahun minimal, transmisi.", searchInventorySchema, false, t.searchInventory},
		{ToolCarDetail, "Detail satu unit berdasarkan kode unit.", carDetailSchema, false, t.carDetail},
		{ToolSendPhotos, "Kirim foto unit ke pelanggan. Wajib dipanggil sebelum menyebut foto dikirim.", sendPhotosSchema, true, t.sendPhotos},
		{ToolFinancing, "Simulasi kredit: cicilan per tenor dengan DP minimal 20%.", financingSchema, false, t.financing},
		{ToolScheduleTestDrive, "Jadwalkan test drive dan beri tahu showroom.", testDriveSchema, true, t.scheduleTestDrive},
		{ToolTradeIn, "Estimasi harga tukar tambah mobil pelanggan.", tradeInSchema, false, t.tradeIn},
	}
	for _, def := range defs {
		if err := reg.Register(def.name, def.desc, def.schema, def.sideEffect, def.h); err != nil {
			return err
		}
	}
	return nil
}

type customerTools struct {
	CustomerToolDeps
}

func (t *customerTools) searchInventory(ctx context.Context, env ToolEnv, raw json.RawMessage) (string, error) {
	var args struct {
		Brand        string `json:"brand"`
		Model        string `json:"model"`
		MaxPrice     int64  `json:"max_price"`
		MinYear      int    `json:"min_year"`
		Transmission string `json:"transmission"`
		Limit        int    `json:"limit"`
	}
	if err := json.Unmarshal(raw, &args); err != nil {
		return "", err
	}
	cars, err := t.Inventory.SearchCars(ctx, env.Tenant.ID, entities.CarQuery{
		Brand:        args.Brand,
		Model:        args.Model,
		MaxPrice:     args.MaxPrice,
		MinYear:      args.MinYear,
		Transmission: args.Transmission,
		Limit:        args.Limit,
	})
	if err != nil {
		return "", err
	}
	if len(cars) == 0 {
		return "Tidak ada unit yang cocok.", nil
	}
	lines := make([]string, 0, len(cars))
	for _, c := range cars {
		lines = append(lines, FormatCarLine(c))
	}
	return strings.Join(lines, "\n"), nil
}

func (t *customerTools) lookup(ctx context.Context, tenantID, code string) (*entities.Car, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	car, err := t.Inventory.CarByCode(ctx, tenantID, code)
	if errors.Is(err, entities.ErrNotFound) {
		return nil, fmt.Errorf("unit %s tidak ditemukan", code)
	}
	return car, err
}

func (t *customerTools) carDetail(ctx context.Context, env ToolEnv, raw json.RawMessage) (string, error) {
	var args struct {
		Code string `json:"code"`
	}
	if err := json.Unmarshal(raw, &args); err != nil {
		return "", err
	}
	car, err := t.lookup(ctx, env.Tenant.ID, args.Code)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Kode: %s\nUnit: %s %d\nHarga: %s\n", car.Code, car.Title(), car.Year, FormatRupiah(car.Price)))
	if car.Transmission != "" {
		sb.WriteString("Transmisi: " + car.Transmission + "\n")
	}
	if car.MileageKm > 0 {
		sb.WriteString(fmt.Sprintf("Kilometer: %d\n", car.MileageKm))
	}
	if car.Color != "" {
		sb.WriteString("Warna: " + car.Color + "\n")
	}
	sb.WriteString("Status: " + car.Status + "\n")
	if car.Description != "" {
		sb.WriteString("Catatan: " + car.Description + "\n")
	}
	sb.WriteString(fmt.Sprintf("Foto tersedia: %d", len(car.Photos)))
	return sb.String(), nil
}

func (t *customerTools) sendPhotos(ctx context.Context, env ToolEnv, raw json.RawMessage) (string, error) {
	var args struct {
		Code      string `json:"code"`
		MaxPhotos int    `json:"max_photos"`
	}
	if err := json.Unmarshal(raw, &args); err != nil {
		return "", err
	}
	car, err := t.lookup(ctx, env.Tenant.ID, args.Code)
	if err != nil {
		return "", err
	}
	if len(car.Photos) == 0 {
		return fmt.Sprintf("Unit %s belum memiliki foto. Tidak ada foto yang dikirim.", car.Code), nil
	}

	limit := args.MaxPhotos
	if limit <= 0 {
		limit = 5
	}
	refs := car.Photos
	if len(refs) > limit {
		refs = refs[:limit]
	}

	var failures []string
	var items []MediaItem
	for i, ref := range refs {
		url := ref
		if t.Media != nil {
			resolved, err := t.Media.Resolve(ctx, ref)
			if err != nil {
				failures = append(failures, fmt.Sprintf("foto %d: %v", i+1, err))
				continue
			}
			url = resolved
		}
		caption := ""
		if len(items) == 0 {
			caption = fmt.Sprintf("[%s] %s %d – %s", car.Code, car.Title(), car.Year, FormatRupiah(car.Price))
		}
		items = append(items, MediaItem{URL: url, Caption: caption})
	}

	sent := 0
	for i, err := range t.Outbound.SendMediaBatch(ctx, env.Tenant.ID, env.Phone, items) {
		switch {
		case err == nil, errors.Is(err, ErrDuplicateSend):
			// a duplicate already went out for this same inbound message
			sent++
		default:
			failures = append(failures, fmt.Sprintf("kirim %d: %v", i+1, err))
		}
	}

	content := fmt.Sprintf("Terkirim %d dari %d foto unit %s.", sent, len(refs), car.Code)
	if len(failures) > 0 {
		content += " Gagal: " + strings.Join(failures, "; ")
	}
	return content, nil
}

func (t *customerTools) financing(ctx context.Context, env ToolEnv, raw json.RawMessage) (string, error) {
	var args struct {
		Code               string  `json:"code"`
		Price              int64   `json:"price"`
		DownPayment        int64   `json:"down_payment"`
		DownPaymentPercent float64 `json:"down_payment_percent"`
		TenorMonths        int     `json:"tenor_months"`
	}
	if err := json.Unmarshal(raw, &args); err != nil {
		return "", err
	}

	price, header := args.Price, ""
	if args.Code != "" {
		car, err := t.lookup(ctx, env.Tenant.ID, args.Code)
		if err != nil {
			return "", err
		}
		price = car.Price
		header = fmt.Sprintf("[%s] %s %d\n", car.Code, car.Title(), car.Year)
	}

	plan, err := t.Financing.Calculate(FinancingQuery{
		Price:              price,
		DownPayment:        args.DownPayment,
		DownPaymentPercent: args.DownPaymentPercent,
		TenorMonths:        args.TenorMonths,
	})
	if err != nil {
		return "", err
	}
	return header + plan.Format(), nil
}

func (t *customerTools) scheduleTestDrive(ctx context.Context, env ToolEnv, raw json.RawMessage) (string, error) {
	var args struct {
		Code         string `json:"code"`
		CustomerName string `json:"customer_name"`
		Date         string `json:"date"`
		Time         string `json:"time"`
	}
	if err := json.Unmarshal(raw, &args); err != nil {
		return "", err
	}
	at, err := time.ParseInLocation("2006-01-02 15:04", args.Date+" "+args.Time, t.Location)
	if err != nil {
		return "", fmt.Errorf("format jadwal tidak valid: %w", err)
	}
	if !at.After(t.Now()) {
		return "", fmt.Errorf("jadwal %s sudah lewat", at.Format("02 Jan 2006 15:04"))
	}

	car, err := t.lookup(ctx, env.Tenant.ID, args.Code)
	if err != nil {
		return "", err
	}
	if car.Status != "" && car.Status != "available" {
		return "", fmt.Errorf("unit %s berstatus %s", car.Code, car.Status)
	}

	td := &entities.TestDrive{
		TenantID:     env.Tenant.ID,
		LeadID:       env.LeadID,
		CarCode:      car.Code,
		CustomerName: strings.TrimSpace(args.CustomerName),
		Phone:        env.Phone,
		ScheduledAt:  at,
	}
	if err := t.Scheduling.BookTestDrive(ctx, td); err != nil {
		return "", err
	}

	content := fmt.Sprintf("Test drive #%d terjadwal: unit %s (%s) pada %s atas nama %s.",
		td.ID, car.Code, car.Title(), at.Format("02 Jan 2006 15:04"), td.CustomerName)

	if target := env.Tenant.NotificationTarget(); target != "" {
		note := fmt.Sprintf("📅 *Test drive baru*\nUnit: [%s] %s\nPelanggan: %s (%s)\nJadwal: %s",
			car.Code, car.Title(), td.CustomerName, env.Phone, at.Format("02 Jan 2006 15:04"))
		if err := t.Outbound.SendText(ctx, env.Tenant.ID, target, note); err != nil && !errors.Is(err, ErrDuplicateSend) {
			content += " Notifikasi ke showroom gagal terkirim."
		} else {
			content += " Showroom sudah diberi tahu."
		}
	}
	return content, nil
}

func (t *customerTools) tradeIn(ctx context.Context, env ToolEnv, raw json.RawMessage) (string, error) {
	var args struct {
		Brand     string `json:"brand"`
		Model     string `json:"model"`
		Year      int    `json:"year"`
		MileageKm int    `json:"mileage_km"`
	}
	if err := json.Unmarshal(raw, &args); err != nil {
		return "", err
	}
	q := TradeInQuery{Brand: args.Brand, Model: args.Model, Year: args.Year, MileageKm: args.MileageKm}
	band, err := t.TradeIn.Appraise(ctx, env.Tenant.ID, q)
	if err != nil {
		return "", err
	}
	return band.Format(q), nil
}
