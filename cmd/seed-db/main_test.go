package main

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseProducts_SeedFile(t *testing.T) {
	data, err := os.ReadFile("../../db/seed/products.json")
	require.NoError(t, err)

	products, err := parseProducts(data)
	require.NoError(t, err)
	require.Len(t, products, 9)

	assert.Equal(t, int64(2), products[1].ID)
	assert.Equal(t, "Wireless Mouse", products[1].Name)
	assert.Equal(t, "19.99", products[1].Price.StringFixed(2))
	assert.Equal(t, 40, products[1].Stock)
}

func TestParseProducts_Rejects(t *testing.T) {
	tests := map[string]string{
		"not an array":   `{"id":1}`,
		"missing id":     `[{"name":"X","price":"1.00","stock":1}]`,
		"numeric price":  `[{"id":1,"name":"X","price":1.00,"stock":1}]`,
		"negative stock": `[{"id":1,"name":"X","price":"1.00","stock":-1}]`,
		"bad price":      `[{"id":1,"name":"X","price":"cheap","stock":1}]`,
	}
	for name, input := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := parseProducts([]byte(input))
			require.Error(t, err)
		})
	}
}
