package models

import "strings"

// Category is the closed set of classification labels.
type Category string

const (
	CategoryDietarySupplement Category = "Dietary Supplement"
	CategoryStationery        Category = "Stationery"
	CategoryKitchenSupplies   Category = "Kitchen Supplies"
	CategoryMedicine          Category = "Medicine"
	CategoryDriverLicense     Category = "Driver License"
	CategoryInvoice           Category = "Invoice"
	CategoryW2                Category = "W2"
	CategoryOther             Category = "Other"
)

var allCategories = []Category{
	CategoryDietarySupplement,
	CategoryStationery,
	CategoryKitchenSupplies,
	CategoryMedicine,
	CategoryDriverLicense,
	CategoryInvoice,
	CategoryW2,
	CategoryOther,
}

// CategoryLabels returns the labels in the order they are offered to the model.
func CategoryLabels() []string {
	labels := make([]string, len(allCategories))
	for i, c := range allCategories {
		labels[i] = string(c)
	}
	return labels
}

// CanonicalCategory maps raw model output onto the closed set. Surrounding
// whitespace, quotes and a trailing period are ignored and the match is
// case-insensitive; anything else is Other.
func CanonicalCategory(raw string) (Category, bool) {
	normalized := strings.TrimSpace(raw)
	normalized = strings.TrimSuffix(normalized, ".")
	normalized = strings.Trim(normalized, "\"'`")
	normalized = strings.TrimSuffix(normalized, ".")
	normalized = strings.TrimSpace(normalized)
	if normalized == "" {
		return CategoryOther, false
	}
	for _, c := range allCategories {
		if strings.EqualFold(normalized, string(c)) {
			return c, true
		}
	}
	return CategoryOther, false
}
