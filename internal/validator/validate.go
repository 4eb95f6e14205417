package validator

import (
	"fmt"
	"math"
	"strings"
)

var requiredFields = []string{"stage", "message", "summary", "product_name", "quick_actions"}

// maxTotal is the first whole number past math.MaxInt on 64-bit platforms.
const maxTotal = float64(1 << 63)

// Validate checks an arbitrary decoded JSON value against the ChatResponse
// contract. It never panics and never modifies its input.
func Validate(candidate any) ValidationResult {
	res := ValidationResult{Errors: []string{}, Warnings: []string{}}

	obj, ok := candidate.(map[string]any)
	if !ok || obj == nil {
		res.Errors = append(res.Errors, "Response is null or not an object")
		return res
	}

	for _, f := range requiredFields {
		if _, ok := obj[f]; !ok {
			res.Errors = append(res.Errors, "Missing required field: "+f)
		}
	}

	if v, ok := obj["stage"]; ok {
		if _, valid := stageOf(v); !valid {
			res.Errors = append(res.Errors, fmt.Sprintf("Invalid stage value: %s. Must be 0, 1, or 2", describe(v)))
		}
	}

	if v, ok := obj["message"]; ok && !nonEmptyString(v) {
		res.Errors = append(res.Errors, "Message must be a non-empty string")
	}

	if v, ok := obj["summary"]; ok {
		if s, isStr := v.(string); !isStr {
			res.Errors = append(res.Errors, "Summary must be a string")
		} else if n := summaryWords(s); n < SummaryWordsMin || n > SummaryWordsMax {
			res.Warnings = append(res.Warnings, fmt.Sprintf("Summary should be %d-%d words (current: %d)", SummaryWordsMin, SummaryWordsMax, n))
		}
	}

	if v, ok := obj["product_name"]; ok && !nonEmptyString(v) {
		res.Errors = append(res.Errors, "Product name must be a non-empty string")
	}

	if v, ok := obj["quick_actions"]; ok {
		actions, isArr := v.([]any)
		switch {
		case !isArr:
			res.Errors = append(res.Errors, "Quick actions must be an array")
		default:
			if len(actions) < QuickActionsMin {
				res.Warnings = append(res.Warnings, fmt.Sprintf("Quick actions should have at least %d items", QuickActionsMin))
			}
			if len(actions) > QuickActionsMax {
				res.Warnings = append(res.Warnings, fmt.Sprintf("Quick actions should have at most %d items (current: %d)", QuickActionsMax, len(actions)))
			}
			for _, a := range actions {
				if _, isStr := a.(string); !isStr {
					res.Errors = append(res.Errors, "All quick actions must be strings")
					break
				}
			}
		}
	}

	if v, ok := obj["suggested_functions"]; ok && v != nil {
		validateSuggestedFunctions(v, &res)
	}

	if v, ok := obj["data"]; ok && v != nil {
		validateData(v, &res)
	}

	res.IsValid = len(res.Errors) == 0
	return res
}

func validateSuggestedFunctions(v any, res *ValidationResult) {
	fns, ok := v.([]any)
	if !ok {
		res.Errors = append(res.Errors, "Suggested functions must be an array or null")
		return
	}
	if len(fns) > SuggestedFunctionsMax {
		res.Errors = append(res.Errors, fmt.Sprintf("Suggested functions must have at most %d item (current: %d)", SuggestedFunctionsMax, len(fns)))
	}
	for _, f := range fns {
		fn, isObj := f.(map[string]any)
		if !isObj || !truthy(fn["function"]) || !truthy(fn["endpoint"]) || !truthy(fn["method"]) {
			res.Errors = append(res.Errors, "Each suggested function must have function, endpoint, and method fields")
		}
	}
}

func validateData(v any, res *ValidationResult) {
	data, ok := v.(map[string]any)
	if !ok {
		res.Errors = append(res.Errors, "Data must be an object or null")
		return
	}

	if mode, ok := data["mode"]; ok && mode != ModeList && mode != ModeDetail {
		res.Errors = append(res.Errors, fmt.Sprintf("Invalid data mode: %s. Must be 'list' or 'detail'", describe(mode)))
	}

	if items, ok := data["items"]; ok && items != nil {
		arr, isArr := items.([]any)
		switch {
		case !isArr:
			res.Errors = append(res.Errors, "Data items must be an array or null")
		case len(arr) > ProductListMax:
			res.Errors = append(res.Errors, fmt.Sprintf("Data items must have at most %d items (current: %d)", ProductListMax, len(arr)))
		}
	}

	if total, ok := data["total"]; ok {
		n, isNum := number(total)
		// Totals must also fit the int the typed response decodes them into.
		if !isNum || n < 0 || n != math.Trunc(n) || n >= maxTotal {
			res.Errors = append(res.Errors, "Data total must be a non-negative number")
		}
	}

	if facets, ok := data["facets"]; ok && facets != nil {
		validateFacets(facets, res)
	}
}

func validateFacets(v any, res *ValidationResult) {
	facets, ok := v.(map[string]any)
	if !ok {
		res.Errors = append(res.Errors, "Data facets must be an object or null")
		return
	}
	for _, key := range sortedKeys(facets) {
		options, isArr := facets[key].([]any)
		if !isArr {
			res.Errors = append(res.Errors, fmt.Sprintf("Facet '%s' must be an array", key))
			continue
		}
		regular := 0
		allStrings := true
		for _, o := range options {
			s, isStr := o.(string)
			if !isStr {
				allStrings = false
			}
			if s != MoreOption {
				regular++
			}
		}
		if !allStrings {
			res.Errors = append(res.Errors, fmt.Sprintf("Facet '%s' options must be strings", key))
		}
		if regular > OptionsMax {
			res.Errors = append(res.Errors, fmt.Sprintf("Facet '%s' has more than %d options without '%s' (current: %d)", key, OptionsMax, MoreOption, regular))
		}
		if len(options) > OptionsMax+1 {
			res.Errors = append(res.Errors, fmt.Sprintf("Facet '%s' has too many items (current: %d, max: %d including '%s')", key, len(options), OptionsMax+1, MoreOption))
		}
	}
}

func stageOf(v any) (Stage, bool) {
	n, ok := number(v)
	if !ok {
		return 0, false
	}
	switch n {
	case 0, 1, 2:
		return Stage(n), true
	}
	return 0, false
}

// number reports v as a float64 when it holds any Go numeric type.
func number(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	}
	return 0, false
}

// summaryWords counts whitespace separated words. A blank summary counts
// as one empty word.
func summaryWords(s string) int {
	return max(len(strings.Fields(s)), 1)
}

// truthy treats nil, false, zero and "" as missing.
func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	}
	if n, ok := number(v); ok {
		return n != 0
	}
	return true
}

func nonEmptyString(v any) bool {
	s, ok := v.(string)
	return ok && strings.TrimSpace(s) != ""
}

func describe(v any) string {
	switch t := v.(type) {
	case nil:
		return "null"
	case string:
		return t
	}
	return fmt.Sprint(v)
}
