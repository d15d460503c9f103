package usecases

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFinancing_DefaultDownPayment(t *testing.T) {
	fc := NewFinancingCalculator()

	plan, err := fc.Calculate(FinancingQuery{Price: 185_000_000})
	require.NoError(t, err)
	assert.Equal(t, int64(37_000_000), plan.DownPayment)
	require.Len(t, plan.Estimates, 5)
	assert.Equal(t, []int{12, 24, 36, 48, 60}, fc.Tenors())

	first := plan.Estimates[0]
	assert.Equal(t, 12, first.TenorMonths)
	assert.Equal(t, int64(148_000_000), first.Principal)
	assert.Equal(t, int64(12_889_000), first.Installment)

	for i := 1; i < len(plan.Estimates); i++ {
		assert.Less(t, plan.Estimates[i].Installment, plan.Estimates[i-1].Installment)
		assert.Zero(t, plan.Estimates[i].Installment%1000)
	}

	out := plan.Format()
	assert.Contains(t, out, "DP: Rp 37.000.000")
	assert.Contains(t, out, "• 12 bulan: Rp 12.889.000/bulan (bunga flat 4.5%/thn)")
}

func TestFinancing_SingleTenorAndPercent(t *testing.T) {
	fc := NewFinancingCalculator()

	plan, err := fc.Calculate(FinancingQuery{Price: 200_000_000, DownPaymentPercent: 30, TenorMonths: 36})
	require.NoError(t, err)
	assert.Equal(t, int64(60_000_000), plan.DownPayment)
	require.Len(t, plan.Estimates, 1)
	assert.Equal(t, 36, plan.Estimates[0].TenorMonths)
}

func TestFinancing_Rejects(t *testing.T) {
	fc := NewFinancingCalculator()

	tests := []struct {
		name string
		q    FinancingQuery
		want string
	}{
		{"no price", FinancingQuery{}, "harga mobil"},
		{"down payment below minimum", FinancingQuery{Price: 185_000_000, DownPayment: 30_000_000}, "DP minimal 20%"},
		{"down payment covers price", FinancingQuery{Price: 100_000_000, DownPayment: 100_000_000}, "melebihi"},
		{"unknown tenor", FinancingQuery{Price: 185_000_000, TenorMonths: 30}, "tenor 30 bulan tidak tersedia"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := fc.Calculate(tt.q)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestFormatRupiah(t *testing.T) {
	assert.Equal(t, "Rp 150.000.000", FormatRupiah(150_000_000))
	assert.Equal(t, "Rp 1.000", FormatRupiah(1000))
	assert.Equal(t, "Rp 999", FormatRupiah(999))
	assert.Equal(t, "Rp 0", FormatRupiah(0))
	assert.Equal(t, "Rp -2.500", FormatRupiah(-2500))
}
