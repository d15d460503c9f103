package usecases

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"showroom_bot/internal/entities"
)

func fixedAppraiser(inv *fakeInventory) *TradeInAppraiser {
	var a *TradeInAppraiser
	if inv == nil {
		a = NewTradeInAppraiser(nil)
	} else {
		a = NewTradeInAppraiser(inv)
	}
	a.now = func() time.Time { return time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC) }
	return a
}

func TestTradeIn_RuleTable(t *testing.T) {
	a := fixedAppraiser(nil)

	band, err := a.Appraise(context.Background(), "showroom-a", TradeInQuery{Brand: "Toyota", Model: "Avanza", Year: 2020})
	require.NoError(t, err)
	assert.Equal(t, "rule_table", band.Source)
	assert.Equal(t, int64(148_000_000), band.Low)
	assert.Equal(t, int64(162_000_000), band.High)
	assert.Contains(t, band.Format(TradeInQuery{Brand: "Toyota", Model: "Avanza", Year: 2020}), "tabel acuan")
}

func TestTradeIn_ListingsMedian(t *testing.T) {
	cheap, pricey := avanza(), avanza()
	cheap.Code, cheap.Price = "AV02", 175_000_000
	pricey.Code, pricey.Price = "AV03", 195_000_000
	a := fixedAppraiser(&fakeInventory{cars: []entities.Car{pricey, brio(), avanza(), cheap}})

	q := TradeInQuery{Brand: "Toyota", Model: "Avanza", Year: 2020}
	band, err := a.Appraise(context.Background(), "showroom-a", q)
	require.NoError(t, err)
	assert.Equal(t, "listings", band.Source)
	assert.Equal(t, 3, band.Comparables)
	assert.Equal(t, int64(148_000_000), band.Low)
	assert.Equal(t, int64(162_000_000), band.High)

	out := band.Format(q)
	assert.Contains(t, out, "3 unit pembanding di showroom")
	assert.Contains(t, out, "Rp 148.000.000 – Rp 162.000.000")
}

func TestTradeIn_FallsBackWithoutComparables(t *testing.T) {
	a := fixedAppraiser(&fakeInventory{cars: []entities.Car{brio()}})

	band, err := a.Appraise(context.Background(), "showroom-a", TradeInQuery{Brand: "Toyota", Year: 2020})
	require.NoError(t, err)
	assert.Equal(t, "rule_table", band.Source)
	assert.Zero(t, band.Comparables)
}

func TestTradeIn_HighMileageCut(t *testing.T) {
	a := fixedAppraiser(nil)

	band, err := a.Appraise(context.Background(), "showroom-a", TradeInQuery{Brand: "Toyota", Year: 2020, MileageKm: 115_000})
	require.NoError(t, err)
	assert.Equal(t, int64(136_000_000), band.Low)
	assert.Equal(t, int64(149_000_000), band.High)
}

func TestTradeIn_Rejects(t *testing.T) {
	a := fixedAppraiser(nil)

	_, err := a.Appraise(context.Background(), "showroom-a", TradeInQuery{Year: 2020})
	assert.Error(t, err)

	_, err = a.Appraise(context.Background(), "showroom-a", TradeInQuery{Brand: "Honda", Year: 2030})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "2030")

	boom := errors.New("db down")
	a = fixedAppraiser(&fakeInventory{searchErr: boom})
	_, err = a.Appraise(context.Background(), "showroom-a", TradeInQuery{Brand: "Honda", Year: 2019})
	assert.ErrorIs(t, err, boom)
}
