package repository

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"regexp"
	"strconv"
	"strings"

	"showroom_bot/internal/entities"
)

var nonIdent = regexp.MustCompile("[^a-z0-9_]+")

// sanitizeHeader lowercases a CSV header into an identifier.
func sanitizeHeader(name string) string {
	return strings.Trim(nonIdent.ReplaceAllString(strings.ToLower(strings.TrimSpace(name)), "_"), "_")
}

// headerAliases maps accepted CSV headers (English and Indonesian) to car fields.
var headerAliases = map[string]string{
	"code": "code", "kode": "code", "stock_code": "code",
	"brand": "brand", "merk": "brand", "merek": "brand",
	"model": "model", "tipe": "model",
	"variant": "variant", "varian": "variant",
	"year": "year", "tahun": "year",
	"price": "price", "harga": "price",
	"transmission": "transmission", "transmisi": "transmission",
	"mileage": "mileage", "mileage_km": "mileage", "km": "mileage", "kilometer": "mileage",
	"color": "color", "warna": "color",
	"status":      "status",
	"description": "description", "deskripsi": "description", "keterangan": "description",
	"photos": "photos", "foto": "photos", "photo": "photos",
}

// ParseCarCSV reads an inventory sheet. The header row is required; code, brand, model,
// year and price are mandatory columns.
func ParseCarCSV(r io.Reader) ([]entities.Car, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV: %w", err)
	}
	if len(rows) < 2 {
		return nil, fmt.Errorf("csv needs a header and at least one row")
	}

	index := map[string]int{}
	for i, h := range rows[0] {
		if field, ok := headerAliases[sanitizeHeader(h)]; ok {
			if _, dup := index[field]; !dup {
				index[field] = i
			}
		}
	}
	for _, required := range []string{"code", "brand", "model", "year", "price"} {
		if _, ok := index[required]; !ok {
			return nil, fmt.Errorf("missing required column %q", required)
		}
	}

	get := func(row []string, field string) string {
		i, ok := index[field]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	cars := make([]entities.Car, 0, len(rows)-1)
	for n, row := range rows[1:] {
		line := n + 2
		code := strings.ToUpper(get(row, "code"))
		if code == "" {
			continue
		}
		year, err := strconv.Atoi(get(row, "year"))
		if err != nil || year < 1950 || year > 2100 {
			return nil, fmt.Errorf("line %d: invalid year %q", line, get(row, "year"))
		}
		price, err := ParseRupiah(get(row, "price"))
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		mileage, _ := strconv.Atoi(digitsOnly(get(row, "mileage")))

		status := strings.ToLower(get(row, "status"))
		if status == "" {
			status = "available"
		}

		cars = append(cars, entities.Car{
			Code:         code,
			Brand:        get(row, "brand"),
			Model:        get(row, "model"),
			Variant:      get(row, "variant"),
			Year:         year,
			Price:        price,
			Transmission: strings.ToUpper(get(row, "transmission")),
			MileageKm:    mileage,
			Color:        get(row, "color"),
			Status:       status,
			Description:  get(row, "description"),
			Photos:       splitPhotos(get(row, "photos")),
		})
	}
	if len(cars) == 0 {
		return nil, fmt.Errorf("csv has no rows with a code")
	}
	return cars, nil
}

func splitPhotos(s string) []string {
	photos := []string{}
	for _, p := range strings.FieldsFunc(s, func(r rune) bool { return r == '|' || r == ';' || r == ' ' }) {
		if p != "" {
			photos = append(photos, p)
		}
	}
	return photos
}

func digitsOnly(s string) string {
	var sb strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			sb.WriteRune(r)
		}
	}
	return sb.String()
}

// ParseRupiah parses "150000000", "150.000.000", "Rp 150jt", "150 juta" or "1,2 M".
func ParseRupiah(s string) (int64, error) {
	raw := strings.ToLower(strings.TrimSpace(s))
	raw = strings.TrimPrefix(raw, "rp")
	raw = strings.TrimSpace(strings.TrimPrefix(raw, "."))

	multiplier := int64(1)
	for _, suffix := range []struct {
		word string
		mult int64
	}{
		{"juta", 1_000_000}, {"jt", 1_000_000},
		{"miliar", 1_000_000_000}, {"m", 1_000_000_000},
		{"ribu", 1_000}, {"rb", 1_000}, {"k", 1_000},
	} {
		if strings.HasSuffix(raw, suffix.word) {
			multiplier = suffix.mult
			raw = strings.TrimSpace(strings.TrimSuffix(raw, suffix.word))
			break
		}
	}

	if multiplier > 1 {
		f, err := strconv.ParseFloat(strings.ReplaceAll(raw, ",", "."), 64)
		if err != nil || f <= 0 {
			return 0, fmt.Errorf("invalid price %q", s)
		}
		return int64(math.Round(f * float64(multiplier))), nil
	}

	digits := digitsOnly(raw)
	if digits == "" {
		return 0, fmt.Errorf("invalid price %q", s)
	}
	v, err := strconv.ParseInt(digits, 10, 64)
	if err != nil || v <= 0 {
		return 0, fmt.Errorf("invalid price %q", s)
	}
	return v, nil
}
