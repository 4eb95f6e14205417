// Package parser unwraps the double-encoded chat reply, a JSON object whose
// "reply" field is itself a JSON document.
package parser

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

type ParsedChatData struct {
	ProductCategoryDecided bool           `json:"product_category_decided"`
	Message                string         `json:"message"`
	Summary                string         `json:"summary"`
	CategoryName           string         `json:"category_name"`
	QuickActions           []string       `json:"quick_actions"`
	ActiveFilters          map[string]any `json:"active_filters"`
}

type ErrorKind string

const (
	KindOuterJSON    ErrorKind = "outer_json"
	KindNotObject    ErrorKind = "not_object"
	KindMissingReply ErrorKind = "missing_reply"
	KindInnerJSON    ErrorKind = "inner_json"
	KindShape        ErrorKind = "shape"
)

// ParseError is returned for every structural failure. Err holds the
// underlying decode error when there is one.
type ParseError struct {
	Kind ErrorKind
	Msg  string
	Err  error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return e.Msg + ": " + e.Err.Error()
	}
	return e.Msg
}

func (e *ParseError) Unwrap() error { return e.Err }

// IsParseError reports whether err is, or wraps, a *ParseError.
func IsParseError(err error) bool {
	var pe *ParseError
	return errors.As(err, &pe)
}

var requiredFields = []string{
	"product_category_decided",
	"message",
	"summary",
	"category_name",
	"quick_actions",
	"active_filters",
}

// Parse decodes text as {"reply": "<json>"} and validates the inner
// document. No repair is attempted.
func Parse(text string) (*ParsedChatData, error) {
	var outer any
	if err := json.Unmarshal([]byte(text), &outer); err != nil {
		return nil, &ParseError{Kind: KindOuterJSON, Msg: "Response is not a valid JSON object", Err: err}
	}
	obj, ok := outer.(map[string]any)
	if !ok {
		return nil, &ParseError{Kind: KindNotObject, Msg: "Response is not a valid JSON object"}
	}
	reply, ok := obj["reply"].(string)
	if !ok || reply == "" {
		return nil, &ParseError{Kind: KindMissingReply, Msg: `Response missing "reply" field or it is not a string`}
	}

	var inner any
	if err := json.Unmarshal([]byte(reply), &inner); err != nil {
		return nil, &ParseError{Kind: KindInnerJSON, Msg: "Failed to parse JSON response", Err: err}
	}
	if !IsValid(inner) {
		return nil, &ParseError{
			Kind: KindShape,
			Msg:  "Response does not match expected ChatResponse structure. Expected fields: " + strings.Join(requiredFields, ", "),
		}
	}

	var data ParsedChatData
	if err := json.Unmarshal([]byte(reply), &data); err != nil {
		return nil, &ParseError{Kind: KindShape, Msg: "Failed to decode chat data", Err: err}
	}
	return &data, nil
}

// TryParse is Parse without the error.
func TryParse(text string) *ParsedChatData {
	data, err := Parse(text)
	if err != nil {
		return nil
	}
	return data
}

// IsValid reports whether v has every ParsedChatData field with the right
// JSON type.
func IsValid(v any) bool {
	obj, ok := v.(map[string]any)
	if !ok {
		return false
	}
	if _, ok := obj["product_category_decided"].(bool); !ok {
		return false
	}
	for _, f := range []string{"message", "summary", "category_name"} {
		if _, ok := obj[f].(string); !ok {
			return false
		}
	}
	actions, ok := obj["quick_actions"].([]any)
	if !ok {
		return false
	}
	for _, a := range actions {
		if _, ok := a.(string); !ok {
			return false
		}
	}
	filters, ok := obj["active_filters"].(map[string]any)
	return ok && filters != nil
}

// Wrap encodes data in the double-encoded envelope Parse accepts.
func Wrap(data ParsedChatData) (string, error) {
	inner, err := json.Marshal(data)
	if err != nil {
		return "", fmt.Errorf("encode chat data: %w", err)
	}
	outer, err := json.Marshal(map[string]string{"reply": string(inner)})
	if err != nil {
		return "", fmt.Errorf("encode reply envelope: %w", err)
	}
	return string(outer), nil
}
