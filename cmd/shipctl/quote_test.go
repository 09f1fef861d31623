package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSnapshot = `
product_id: tracker-x
cities:
  - id: 12
    name: Lahore
    province_code: PB
rules:
  - id: lahore-express
    city_id: 12
    mode: flat
    flat_amount: 150
    eta_days: 1
  - id: punjab
    province_code: PB
    mode: per_item
    per_item_amount: "100"
    priority: 10
  - id: summer-free
    province_code: PB
    mode: coupon_free
    coupon_code: SUMMER
    priority: 20
  - id: bulky
    province_code: PB
    mode: flat
    flat_amount: 0
    priority: 30
    condition: "weight_kg > 10.0"
settings:
  fallback_mode: per_kg
  fallback_base_amount: 150
  fallback_per_kg_amount: 40
  free_over_subtotal: 10000
  cod_fee: 50
`

func quote(t *testing.T, snapshot, request string) map[string]interface{} {
	t.Helper()
	path := filepath.Join(t.TempDir(), "snapshot.yaml")
	require.NoError(t, os.WriteFile(path, []byte(snapshot), 0o600))

	var out bytes.Buffer
	err := runQuote(context.Background(), quoteOptions{snapshotPath: path, requestPath: "-"}, strings.NewReader(request), &out)
	require.NoError(t, err)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(out.Bytes(), &resp))
	return resp
}

func TestQuoteOffline(t *testing.T) {
	tests := []struct {
		name    string
		request string
		amount  float64
		eta     interface{}
	}{
		{"city rule wins", `{"product_id":"tracker-x","province_code":"PB","city":"lahore","items":[{"qty":2}],"subtotal":3000}`, 200, 1.0},
		{"coupon outranks per item", `{"product_id":"tracker-x","province_code":"pb","city":"Multan","coupon":"summer","items":[{"qty":2}],"subtotal":3000}`, 50, nil},
		{"province per item", `{"product_id":"tracker-x","province_code":"PB","items":[{"qty":2},{"qty":"1"}],"subtotal":3000}`, 350, nil},
		{"condition rule", `{"product_id":"tracker-x","province_code":"PB","items":[{"qty":1}],"subtotal":3000,"total_weight_kg":12}`, 50, nil},
		{"fallback per kg", `{"product_id":"tracker-x","province_code":"SD","items":[],"subtotal":3000,"total_weight_kg":2.5}`, 300, nil},
		{"free over subtotal keeps cod", `{"product_id":"tracker-x","province_code":"SD","items":[],"subtotal":12000}`, 50, nil},
		{"unknown product", `{"product_id":"other","items":[]}`, 0, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := quote(t, testSnapshot, tt.request)
			assert.Equal(t, tt.amount, resp["amount"])
			assert.Equal(t, tt.eta, resp["eta_days"])
		})
	}
}

func TestQuoteOffline_Validation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snapshot.yaml")
	require.NoError(t, os.WriteFile(path, []byte(testSnapshot), 0o600))

	err := runQuote(context.Background(), quoteOptions{snapshotPath: path, requestPath: "-"},
		strings.NewReader(`{"items":[]}`), new(bytes.Buffer))
	assert.EqualError(t, err, "product_id required")

	err = runQuote(context.Background(), quoteOptions{requestPath: "-"}, strings.NewReader(`{}`), new(bytes.Buffer))
	assert.Error(t, err)
}

func TestFileCities(t *testing.T) {
	cities := fileCities{{ID: 1, Name: "Hyderabad", ProvinceCode: "SD"}, {ID: 2, Name: "Hyderabad", ProvinceCode: "TS"}}

	id, err := cities.FindCityID(context.Background(), "ts", "HYDERABAD")
	require.NoError(t, err)
	assert.Equal(t, int64(2), *id)

	id, _ = cities.FindCityID(context.Background(), "", "hyderabad")
	assert.Equal(t, int64(1), *id)

	id, _ = cities.FindCityID(context.Background(), "PB", "Hyderabad")
	assert.Nil(t, id)
}
