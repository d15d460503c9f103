package usecases

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"showroom_bot/internal/entities"
	"showroom_bot/internal/interfaces"
)

const (
	yearlyDepreciation = 0.10
	// Dealers buy below retail to cover reconditioning and margin.
	tradeInLow        = 0.80
	tradeInHigh       = 0.88
	expectedKmPerYear = 15000
)

// Typical retail price of a five year old unit, used when the tenant has no comparable listings.
var brandBaseline = map[string]int64{
	"toyota":     185_000_000,
	"honda":      175_000_000,
	"mitsubishi": 170_000_000,
	"mazda":      190_000_000,
	"nissan":     130_000_000,
	"daihatsu":   120_000_000,
	"suzuki":     120_000_000,
	"wuling":     110_000_000,
	"hyundai":    160_000_000,
}

const defaultBaseline int64 = 115_000_000

// TradeInAppraiser gives a price band for a customer's car.
type TradeInAppraiser struct {
	inventory interfaces.Inventory
	now       func() time.Time
}

func NewTradeInAppraiser(inv interfaces.Inventory) *TradeInAppraiser {
	return &TradeInAppraiser{inventory: inv, now: time.Now}
}

type TradeInQuery struct {
	Brand     string
	Model     string
	Year      int
	MileageKm int
}

type TradeInBand struct {
	Low         int64
	High        int64
	Comparables int
	Source      string // listings or rule_table
}

// Appraise prices q from comparable listings, falling back to the brand rule table.
func (a *TradeInAppraiser) Appraise(ctx context.Context, tenantID string, q TradeInQuery) (*TradeInBand, error) {
	if q.Brand == "" || q.Year == 0 {
		return nil, fmt.Errorf("merek dan tahun mobil wajib diisi")
	}
	currentYear := a.now().Year()
	if q.Year < 1980 || q.Year > currentYear {
		return nil, fmt.Errorf("tahun %d tidak valid", q.Year)
	}

	var retail int64
	band := &TradeInBand{Source: "rule_table"}

	if a.inventory != nil {
		cars, err := a.inventory.SearchCars(ctx, tenantID, entities.CarQuery{Brand: q.Brand, Model: q.Model, Limit: 20})
		if err != nil {
			return nil, err
		}
		var adjusted []int64
		for _, c := range cars {
			if c.Price <= 0 || c.Year == 0 {
				continue
			}
			adjusted = append(adjusted, depreciate(c.Price, c.Year-q.Year))
		}
		if len(adjusted) > 0 {
			retail = median(adjusted)
			band.Comparables = len(adjusted)
			band.Source = "listings"
		}
	}

	if retail == 0 {
		base, ok := brandBaseline[strings.ToLower(strings.TrimSpace(q.Brand))]
		if !ok {
			base = defaultBaseline
		}
		age := currentYear - q.Year
		retail = depreciate(base, age-5)
	}

	retail = adjustMileage(retail, q.MileageKm, currentYear-q.Year)
	band.Low = roundDownMillion(float64(retail) * tradeInLow)
	band.High = roundDownMillion(float64(retail) * tradeInHigh)
	return band, nil
}

func (b *TradeInBand) Format(q TradeInQuery) string {
	name := strings.TrimSpace(q.Brand + " " + q.Model)
	src := "tabel acuan"
	if b.Source == "listings" {
		src = fmt.Sprintf("%d unit pembanding di showroom", b.Comparables)
	}
	return fmt.Sprintf("🔄 *Estimasi Tukar Tambah*\n%s %d\nKisaran: %s – %s\nSumber: %s\n\n_Harga final setelah inspeksi fisik._",
		name, q.Year, FormatRupiah(b.Low), FormatRupiah(b.High), src)
}

// depreciate moves price by yearsOlder at the yearly rate; negative means newer.
func depreciate(price int64, yearsOlder int) int64 {
	v := float64(price)
	for i := 0; i < yearsOlder; i++ {
		v *= 1 - yearlyDepreciation
	}
	for i := 0; i > yearsOlder; i-- {
		v /= 1 - yearlyDepreciation
	}
	return int64(v)
}

// adjustMileage takes 2% per 10.000 km above the expected odometer.
func adjustMileage(price int64, km, age int) int64 {
	if km <= 0 {
		return price
	}
	if age < 1 {
		age = 1
	}
	excess := km - age*expectedKmPerYear
	if excess <= 0 {
		return price
	}
	cut := float64(excess/10000) * 0.02
	if cut > 0.3 {
		cut = 0.3
	}
	return int64(float64(price) * (1 - cut))
}

func median(v []int64) int64 {
	s := append([]int64(nil), v...)
	sort.Slice(s, func(i, j int) bool { return s[i] < s[j] })
	mid := len(s) / 2
	if len(s)%2 == 0 {
		return (s[mid-1] + s[mid]) / 2
	}
	return s[mid]
}

func roundDownMillion(v float64) int64 {
	n := int64(v)
	return n - n%1_000_000
}
