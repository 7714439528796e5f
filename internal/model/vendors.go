package model

import (
	_ "embed"

	"gopkg.in/yaml.v3"
)

//go:embed vendors.yaml
var vendorsYAML []byte

// Vendor is one supported pricing source.
type Vendor struct {
	Slug string `yaml:"slug"`
	Name string `yaml:"name"`
}

type vendorFile struct {
	Vendors  []Vendor `yaml:"vendors"`
	Finishes []string `yaml:"finishes"`
}

var (
	vendors     []Vendor
	vendorSet   map[string]bool
	vendorNames map[string]string
	finishes    []string
	finishSet   map[string]bool
)

func init() {
	var f vendorFile
	if err := yaml.Unmarshal(vendorsYAML, &f); err != nil {
		panic("model: parse embedded vendors.yaml: " + err.Error())
	}
	vendors = f.Vendors
	finishes = f.Finishes
	vendorSet = make(map[string]bool, len(f.Vendors))
	vendorNames = make(map[string]string, len(f.Vendors))
	for _, v := range f.Vendors {
		vendorSet[v.Slug] = true
		vendorNames[v.Slug] = v.Name
	}
	finishSet = make(map[string]bool, len(f.Finishes))
	for _, fin := range f.Finishes {
		finishSet[fin] = true
	}
}

// SupportedVendors returns the fixed vendor set, in file order.
func SupportedVendors() []Vendor { return vendors }

// VendorSet returns the supported vendor slugs as a membership set.
func VendorSet() map[string]bool { return vendorSet }

// VendorName returns the display name for a vendor slug, or the slug itself.
func VendorName(slug string) string {
	if name, ok := vendorNames[slug]; ok {
		return name
	}
	return slug
}

// Finishes returns the supported finish variants, in file order.
func Finishes() []string { return finishes }

// FinishSet returns the supported finishes as a membership set.
func FinishSet() map[string]bool { return finishSet }
