package repository

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"showroom_bot/internal/entities"
)

func TestParseCarCSV(t *testing.T) {
	sheet := `Kode,Merk,Model,Varian,Tahun,Harga,Transmisi,KM,Warna,Foto
av01,Toyota,Avanza,1.3 G,2021,Rp 185.000.000,mt,35.000,Hitam,cars/av01-1.jpg|cars/av01-2.jpg
,Honda,Jazz,RS,2019,190jt,AT,,Merah,
br02,Honda,Brio,Satya,2020,"135,5 juta",at,20000,Putih,
`
	cars, err := ParseCarCSV(strings.NewReader(sheet))
	require.NoError(t, err)
	require.Len(t, cars, 2, "rows without a code are skipped")

	assert.Equal(t, "AV01", cars[0].Code)
	assert.Equal(t, int64(185_000_000), cars[0].Price)
	assert.Equal(t, 35000, cars[0].MileageKm)
	assert.Equal(t, "MT", cars[0].Transmission)
	assert.Equal(t, "available", cars[0].Status)
	assert.Equal(t, []string{"cars/av01-1.jpg", "cars/av01-2.jpg"}, cars[0].Photos)

	assert.Equal(t, int64(135_500_000), cars[1].Price)
	assert.Empty(t, cars[1].Photos)
}

func TestParseCarCSVRejectsBadSheets(t *testing.T) {
	_, err := ParseCarCSV(strings.NewReader("code,brand,model,year\nA1,Toyota,Yaris,2020\n"))
	assert.ErrorContains(t, err, `"price"`)

	_, err = ParseCarCSV(strings.NewReader("code,brand,model,year,price\nA1,Toyota,Yaris,20x0,100jt\n"))
	assert.ErrorContains(t, err, "line 2")

	_, err = ParseCarCSV(strings.NewReader("code,brand,model,year,price\n"))
	assert.Error(t, err)
}

func TestParseRupiah(t *testing.T) {
	cases := map[string]int64{
		"150000000":      150_000_000,
		"150.000.000":    150_000_000,
		"Rp 150jt":       150_000_000,
		"150 juta":       150_000_000,
		"1,2 M":          1_200_000_000,
		"1.2 miliar":     1_200_000_000,
		"500rb":          500_000,
		"Rp. 99.500.000": 99_500_000,
	}
	for in, want := range cases {
		got, err := ParseRupiah(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseRupiah("nego")
	assert.Error(t, err)
}

func TestBuildSearch(t *testing.T) {
	sql, args := buildSearch("t1", entities.CarQuery{Brand: "Toyota", MaxPrice: 200_000_000, Limit: 50})

	assert.Contains(t, sql, "brand ILIKE $2")
	assert.Contains(t, sql, "price <= $3")
	assert.Contains(t, sql, "LIMIT $4")
	assert.Equal(t, []any{"t1", "Toyota", int64(200_000_000), 5}, args)
}

func TestProfileFromConfigs(t *testing.T) {
	p := profileFromConfigs("sinar", []TenantConfig{
		{Key: KeyDisplayName, Value: "Sinar Motor"},
		{Key: KeyContactPhone, Value: "628111"},
		{Key: "unrelated", Value: "x"},
	})
	assert.Equal(t, "Sinar Motor", p.DisplayName)
	assert.Equal(t, "628111", p.NotificationTarget())

	bare := profileFromConfigs("sinar", nil)
	assert.Equal(t, "sinar", bare.DisplayName)
}

func TestSanitizeTenantID(t *testing.T) {
	id, ok := SanitizeTenantID("  Sinar_Motor ")
	assert.True(t, ok)
	assert.Equal(t, "sinar_motor", id)

	_, ok = SanitizeTenantID("bad id;drop")
	assert.False(t, ok)
}
