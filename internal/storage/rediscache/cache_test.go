package rediscache

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/hdcontrol/internal/domain/product"
)

func TestProductCodec(t *testing.T) {
	p := &product.Product{
		ID:          42,
		Name:        `Cable "USB-C"`,
		Description: "1m, braided",
		Brand:       "Acme",
		Price:       decimal.RequireFromString("12.34"),
	}

	got, err := decodeProduct(encodeProduct(p))
	require.NoError(t, err)
	assert.Equal(t, p.ID, got.ID)
	assert.Equal(t, p.Name, got.Name)
	assert.Equal(t, p.Brand, got.Brand)
	assert.True(t, p.Price.Equal(got.Price))
}

func TestDecodeProduct_Invalid(t *testing.T) {
	for _, input := range []string{`{"id":"x"}`, `{"price":"abc"}`, `[]`} {
		_, err := decodeProduct([]byte(input))
		assert.Error(t, err, input)
	}
}

func TestKey(t *testing.T) {
	assert.Equal(t, "hdcontrol:product:7", key(7))
}
