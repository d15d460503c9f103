package usecases

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// MinDownPaymentRatio is the lowest down payment leasing partners accept.
const MinDownPaymentRatio = 0.20

// FinancingCalculator estimates flat-rate installments by tenor.
type FinancingCalculator struct {
	rates map[int]float64 // tenor months -> flat annual rate
}

func NewFinancingCalculator() *FinancingCalculator {
	return &FinancingCalculator{rates: map[int]float64{
		12: 0.045,
		24: 0.050,
		36: 0.055,
		48: 0.060,
		60: 0.065,
	}}
}

// FinancingQuery is either a down payment amount or a percentage of price.
type FinancingQuery struct {
	Price              int64
	DownPayment        int64
	DownPaymentPercent float64
	TenorMonths        int // 0 lists every tenor
}

type FinancingEstimate struct {
	TenorMonths int
	AnnualRate  float64
	Principal   int64
	Installment int64
}

type FinancingPlan struct {
	Price       int64
	DownPayment int64
	Estimates   []FinancingEstimate
}

func (fc *FinancingCalculator) Tenors() []int {
	tenors := make([]int, 0, len(fc.rates))
	for t := range fc.rates {
		tenors = append(tenors, t)
	}
	sort.Ints(tenors)
	return tenors
}

// Calculate returns the installment table for q.
func (fc *FinancingCalculator) Calculate(q FinancingQuery) (*FinancingPlan, error) {
	if q.Price <= 0 {
		return nil, fmt.Errorf("harga mobil harus lebih dari 0")
	}

	dp := q.DownPayment
	if dp == 0 {
		pct := q.DownPaymentPercent
		if pct == 0 {
			pct = MinDownPaymentRatio * 100
		}
		dp = int64(float64(q.Price) * pct / 100)
	}
	minDP := int64(float64(q.Price) * MinDownPaymentRatio)
	if dp < minDP {
		return nil, fmt.Errorf("DP minimal 20%% (%s)", FormatRupiah(minDP))
	}
	if dp >= q.Price {
		return nil, fmt.Errorf("DP tidak boleh melebihi harga mobil")
	}

	tenors := fc.Tenors()
	if q.TenorMonths != 0 {
		if _, ok := fc.rates[q.TenorMonths]; !ok {
			return nil, fmt.Errorf("tenor %d bulan tidak tersedia, pilih %s", q.TenorMonths, joinInts(tenors))
		}
		tenors = []int{q.TenorMonths}
	}

	plan := &FinancingPlan{Price: q.Price, DownPayment: dp}
	principal := q.Price - dp
	for _, t := range tenors {
		rate := fc.rates[t]
		interest := float64(principal) * rate * float64(t) / 12
		installment := (float64(principal) + interest) / float64(t)
		plan.Estimates = append(plan.Estimates, FinancingEstimate{
			TenorMonths: t,
			AnnualRate:  rate,
			Principal:   principal,
			Installment: roundUpThousand(installment),
		})
	}
	return plan, nil
}

// Format renders the plan the way it is sent to customers.
func (p *FinancingPlan) Format() string {
	var sb strings.Builder
	sb.WriteString("💳 *Simulasi Kredit*\n")
	sb.WriteString(fmt.Sprintf("Harga: %s\nDP: %s\nPokok: %s\n\n", FormatRupiah(p.Price), FormatRupiah(p.DownPayment), FormatRupiah(p.Price-p.DownPayment)))
	for _, e := range p.Estimates {
		sb.WriteString(fmt.Sprintf("• %d bulan: %s/bulan (bunga flat %.1f%%/thn)\n", e.TenorMonths, FormatRupiah(e.Installment), e.AnnualRate*100))
	}
	sb.WriteString("\n_Estimasi, angka final mengikuti persetujuan leasing._")
	return sb.String()
}

func roundUpThousand(v float64) int64 {
	n := int64(v)
	if float64(n) < v {
		n++
	}
	if rem := n % 1000; rem != 0 {
		n += 1000 - rem
	}
	return n
}

// FormatRupiah renders 150000000 as "Rp 150.000.000".
func FormatRupiah(v int64) string {
	neg := v < 0
	if neg {
		v = -v
	}
	s := strconv.FormatInt(v, 10)
	var out []byte
	for i := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			out = append(out, '.')
		}
		out = append(out, s[i])
	}
	if neg {
		return "Rp -" + string(out)
	}
	return "Rp " + string(out)
}

func joinInts(v []int) string {
	parts := make([]string, len(v))
	for i, n := range v {
		parts[i] = strconv.Itoa(n)
	}
	return strings.Join(parts, "/")
}
