package validator

import (
	"encoding/json"
	"fmt"
)

const fallbackWarning = "Using fallback response"

// Sanitize caps the candidate, validates it and converts it to a typed
// ChatResponse. Invalid candidates are replaced by Fallback; the returned
// result still carries the original errors.
func Sanitize(candidate any) (ChatResponse, ValidationResult) {
	capped := EnforceCaps(candidate)
	res := Validate(capped)
	if !res.IsValid {
		return fallbackFor(res)
	}

	resp, err := decode(capped)
	if err != nil {
		res.IsValid = false
		res.Errors = append(res.Errors, err.Error())
		return fallbackFor(res)
	}
	return resp, res
}

// SanitizeJSON decodes raw and sanitizes the result. Undecodable input
// yields the fallback response.
func SanitizeJSON(raw []byte) (ChatResponse, ValidationResult) {
	var candidate any
	if err := json.Unmarshal(raw, &candidate); err != nil {
		res := ValidationResult{
			Errors:   []string{fmt.Sprintf("Response is not valid JSON: %v", err)},
			Warnings: []string{},
		}
		return fallbackFor(res)
	}
	return Sanitize(candidate)
}

// Fallback is the fixed, contract-conformant reply shown when the model's
// answer cannot be used.
func Fallback(reason string) ChatResponse {
	total := 0
	return ChatResponse{
		Stage:              StageGeneral,
		Message:            fmt.Sprintf("I apologize, but I encountered an error processing your request: %s. Please try again or rephrase your question.", reason),
		Summary:            "Error processing request",
		ProductName:        "general",
		QuickActions:       []string{"Show all categories", "Help me get started"},
		SuggestedFunctions: []SuggestedFunction{},
		Data: &ResponseData{
			Mode:   ModeList,
			Items:  []json.RawMessage{},
			Total:  &total,
			Facets: map[string][]string{},
		},
	}
}

func fallbackFor(res ValidationResult) (ChatResponse, ValidationResult) {
	reason := "Unknown error"
	if len(res.Errors) > 0 {
		reason = res.Errors[0]
	}
	res.Warnings = append(res.Warnings, fallbackWarning)
	return Fallback(reason), res
}

func decode(v any) (ChatResponse, error) {
	var resp ChatResponse
	b, err := json.Marshal(v)
	if err != nil {
		return resp, fmt.Errorf("encode candidate: %w", err)
	}
	if err := json.Unmarshal(b, &resp); err != nil {
		return resp, fmt.Errorf("decode candidate: %w", err)
	}
	return resp, nil
}
