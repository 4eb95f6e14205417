package upstream

import (
	"regexp"
	"strings"
)

const (
	CategoryCar      = "car"
	CategoryBackpack = "backpack"
)

// ProductQuery is either a category browse (Search empty) or a search
// within Category.
type ProductQuery struct {
	Category string
	Search   string
}

var categoryWords = regexp.MustCompile(`cars|car|backpacks|backpack`)

// ResolveProductQuery turns a model supplied product name into a catalog
// query. Anything that does not mention cars is treated as a backpack.
func ResolveProductQuery(productName string) ProductQuery {
	name := strings.ToLower(strings.TrimSpace(productName))
	category := CategoryBackpack
	if strings.Contains(name, CategoryCar) {
		category = CategoryCar
	}
	if isAny(name, "car", "cars", "backpack", "backpacks") {
		return ProductQuery{Category: category}
	}
	search := strings.Join(strings.Fields(categoryWords.ReplaceAllString(name, "")), " ")
	return ProductQuery{Category: category, Search: search}
}

func isAny(s string, candidates ...string) bool {
	for _, c := range candidates {
		if s == c {
			return true
		}
	}
	return false
}
