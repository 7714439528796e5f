package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSupportedVendors(t *testing.T) {
	vendors := SupportedVendors()
	assert.Len(t, vendors, 4)
	assert.Equal(t, "tcgplayer", vendors[0].Slug)

	set := VendorSet()
	assert.True(t, set["cardkingdom"])
	assert.True(t, set["cardmarket"])
	assert.False(t, set["ebay"])
}

func TestVendorName(t *testing.T) {
	assert.Equal(t, "Card Kingdom", VendorName("cardkingdom"))
	assert.Equal(t, "unknownvendor", VendorName("unknownvendor"))
}

func TestFinishes(t *testing.T) {
	assert.Equal(t, []string{"normal", "foil", "etched"}, Finishes())
	assert.True(t, FinishSet()["foil"])
	assert.False(t, FinishSet()["glossy"])
}
