package validator

import "sort"

// EnforceCaps returns a copy of candidate with every list truncated to its
// contract maximum. The input is never modified and applying EnforceCaps to
// its own output changes nothing. Non-object input is returned as is.
func EnforceCaps(candidate any) any {
	obj, ok := candidate.(map[string]any)
	if !ok || obj == nil {
		return candidate
	}
	out := cloneMap(obj)

	if actions, ok := obj["quick_actions"].([]any); ok && len(actions) > QuickActionsMax {
		out["quick_actions"] = cloneSlice(actions[:QuickActionsMax])
	}

	if fns, ok := obj["suggested_functions"].([]any); ok && len(fns) > SuggestedFunctionsMax {
		out["suggested_functions"] = cloneSlice(fns[:SuggestedFunctionsMax])
	}

	if data, ok := obj["data"].(map[string]any); ok && data != nil {
		out["data"] = capData(data)
	}
	return out
}

func capData(data map[string]any) map[string]any {
	out := cloneMap(data)

	if items, ok := data["items"].([]any); ok && len(items) > ProductListMax {
		out["items"] = cloneSlice(items[:ProductListMax])
		// total reports the full result size, so it only ever grows to
		// cover the truncated list.
		switch total, present := data["total"]; {
		case !present || total == nil:
			out["total"] = float64(ProductListMax)
		default:
			if n, isNum := number(total); isNum && n < ProductListMax {
				out["total"] = float64(ProductListMax)
			}
		}
	}

	if facets, ok := data["facets"].(map[string]any); ok && facets != nil {
		capped := make(map[string]any, len(facets))
		for key, v := range facets {
			options, isArr := v.([]any)
			if !isArr {
				capped[key] = v
				continue
			}
			capped[key] = capOptions(options)
		}
		out["facets"] = capped
	}
	return out
}

// capOptions keeps the first OptionsMax regular options and appends
// MoreOption when any were dropped.
func capOptions(options []any) []any {
	regular := make([]any, 0, len(options))
	for _, o := range options {
		if o != MoreOption {
			regular = append(regular, o)
		}
	}
	if len(regular) <= OptionsMax {
		return cloneSlice(options)
	}
	out := make([]any, 0, OptionsMax+1)
	out = append(out, regular[:OptionsMax]...)
	return append(out, MoreOption)
}

func cloneMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func cloneSlice(s []any) []any {
	out := make([]any, len(s))
	copy(out, s)
	return out
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
