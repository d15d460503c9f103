package usecases

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIntentExtractor_Extract(t *testing.T) {
	ex := NewIntentExtractor(DefaultPatterns())

	tests := []struct {
		text     string
		intent   string
		entities map[string]string
	}{
		{"Halo", IntentGreeting, map[string]string{}},
		{"ada foto Avanza?", IntentPhoto, map[string]string{"brand": "toyota", "model": "avanza"}},
		{"harga brio 2019 berapa?", IntentPrice, map[string]string{"brand": "honda", "model": "brio", "year": "2019"}},
		{"cicilan xpander dp 30 juta", IntentFinancing, map[string]string{"brand": "mitsubishi", "model": "xpander", "budget": "30000000"}},
		{"mau test drive hari sabtu", IntentTestDrive, map[string]string{}},
		{"bisa tukar tambah?", IntentTradeIn, map[string]string{}},
		{"alamat showroom dimana", IntentLocation, map[string]string{}},
		{"terima kasih", IntentGeneral, map[string]string{}},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			got := ex.Extract(tt.text)
			assert.Equal(t, tt.intent, got.Name)
			assert.Equal(t, tt.entities, got.Entities)
		})
	}
}

func TestIntentExtractor_Confidence(t *testing.T) {
	ex := NewIntentExtractor(DefaultPatterns())

	general := ex.Extract("oke")
	assert.InDelta(t, 0.3, general.Confidence, 0.001)

	strong := ex.Extract("harga berapa nego?")
	assert.Equal(t, IntentPrice, strong.Name)
	assert.InDelta(t, 0.95, strong.Confidence, 0.001)
	assert.Equal(t, 3, strong.Words)
}

func TestParseBudget(t *testing.T) {
	tests := []struct {
		in   string
		want int64
	}{
		{"budget 150 juta", 150_000_000},
		{"max 150jt", 150_000_000},
		{"sekitar 1,2 M", 1_200_000_000},
		{"Rp 150.000.000 ada?", 150_000_000},
		{"ada unit 2020?", 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseBudget(tt.in), tt.in)
	}
}

func TestLoadPatterns_RejectsBadRegex(t *testing.T) {
	_, err := LoadPatterns([]byte("photo_requests: ['(']\nreference_code: 'x'\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "photo_requests")
}

func TestIsPureGreeting(t *testing.T) {
	ex := NewIntentExtractor(DefaultPatterns())
	assert.True(t, IsPureGreeting(ex.Extract("halo min")))
	assert.False(t, IsPureGreeting(ex.Extract("halo min ada avanza matic tahun muda?")))
}
