// Package validator checks, caps and sanitizes the staged ChatResponse
// contract returned by the shopping model.
package validator

import "encoding/json"

const (
	ProductListMax        = 20
	OptionsMax            = 4
	SuggestedFunctionsMax = 1
	QuickActionsMin       = 2
	QuickActionsMax       = 4
	SummaryWordsMin       = 5
	SummaryWordsMax       = 20

	// MoreOption is the sentinel facet entry meaning "further options exist".
	MoreOption = "More"
)

// Stage is the conversation phase: general help, category narrowing or
// product detail.
type Stage int

const (
	StageGeneral   Stage = 0
	StageNarrowing Stage = 1
	StageDetail    Stage = 2
)

const (
	ModeList   = "list"
	ModeDetail = "detail"
)

type ChatResponse struct {
	Stage              Stage               `json:"stage"`
	Message            string              `json:"message"`
	Summary            string              `json:"summary"`
	ProductName        string              `json:"product_name"`
	QuickActions       []string            `json:"quick_actions"`
	SuggestedFunctions []SuggestedFunction `json:"suggested_functions"`
	Data               *ResponseData       `json:"data,omitempty"`
}

type SuggestedFunction struct {
	Function string `json:"function"`
	Endpoint string `json:"endpoint"`
	Method   string `json:"method"`
}

// ResponseData carries the product payload. Items are kept verbatim; only
// their count is part of the contract.
type ResponseData struct {
	Mode   string              `json:"mode,omitempty"`
	Items  []json.RawMessage   `json:"items"`
	Total  *int                `json:"total,omitempty"`
	Facets map[string][]string `json:"facets"`
}

type ProductCard struct {
	ID              int     `json:"id"`
	Name            string  `json:"name"`
	Brand           string  `json:"brand,omitempty"`
	Price           float64 `json:"price,omitempty"`
	Color           string  `json:"color,omitempty"`
	ImageURL        string  `json:"image_url,omitempty"`
	Category        string  `json:"category,omitempty"`
	Description     string  `json:"description,omitempty"`
	PublishTime     string  `json:"publish_time,omitempty"`
	SellingQuantity any     `json:"selling_quantity,omitempty"`
	// Tags is a list on some backends and a comma separated string on others.
	Tags any `json:"tags,omitempty"`
}

// Products decodes the items that look like product cards and skips the rest.
func (d *ResponseData) Products() []ProductCard {
	if d == nil {
		return nil
	}
	out := make([]ProductCard, 0, len(d.Items))
	for _, raw := range d.Items {
		var p ProductCard
		if err := json.Unmarshal(raw, &p); err != nil {
			continue
		}
		out = append(out, p)
	}
	return out
}

type ValidationResult struct {
	IsValid  bool     `json:"isValid"`
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
}
