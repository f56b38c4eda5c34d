package catalog

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestPatchApply_KeepsOmittedFields(t *testing.T) {
	base := Product{
		ID: "p1", Name: "Bel Air", Description: "1957", Price: dec("500"),
		OldPrice: decimal.NewNullDecimal(dec("650")), ImageURL: "a.png",
		Category: CategoryClassic, Stock: 2, IsOffer: true,
	}

	assert.Equal(t, base, Patch{}.Apply(base))

	name := "Bel Air Convertible"
	stock := 0
	cleared := decimal.NullDecimal{}
	got := Patch{Name: &name, Stock: &stock, OldPrice: &cleared}.Apply(base)

	assert.Equal(t, name, got.Name)
	assert.Equal(t, 0, got.Stock)
	assert.False(t, got.OldPrice.Valid)
	assert.Equal(t, base.Description, got.Description)
	assert.Equal(t, base.Category, got.Category)
	assert.True(t, got.IsOffer)
}

func TestProductValidate(t *testing.T) {
	ok := Product{Name: "GT", Price: dec("1"), Category: CategoryLuxury}
	assert.NoError(t, ok.Validate())

	tests := map[string]Product{
		"missing name":    {Price: dec("1"), Category: CategoryLuxury},
		"negative price":  {Name: "GT", Price: dec("-1"), Category: CategoryLuxury},
		"negative stock":  {Name: "GT", Price: dec("1"), Category: CategoryLuxury, Stock: -3},
		"bad category":    {Name: "GT", Price: dec("1"), Category: "vans"},
		"negative old px": {Name: "GT", Price: dec("1"), Category: CategoryLuxury, OldPrice: decimal.NewNullDecimal(dec("-2"))},
	}
	for name, p := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Error(t, p.Validate())
		})
	}
}
