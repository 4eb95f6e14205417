// Package prompts renders the system and repair prompts sent to the model.
package prompts

import (
	_ "embed"
	"fmt"
	"os"
	"strings"
	"text/template"

	"gopkg.in/yaml.v3"

	"shopping-assistant-backend/internal/config"
	"shopping-assistant-backend/internal/validator"
)

//go:embed assistant.yaml
var defaultSpec []byte

// Spec is the YAML prompt file.
type Spec struct {
	Intro  string `yaml:"intro"`
	Staged string `yaml:"staged"`
	Nested string `yaml:"nested"`
	Repair string `yaml:"repair"`
	Style  struct {
		Temperature float32 `yaml:"temperature"`
		MaxTokens   int     `yaml:"max_tokens"`
	} `yaml:"style"`
}

type Set struct {
	spec   Spec
	intro  *template.Template
	staged *template.Template
	nested *template.Template
	repair *template.Template
}

var funcs = template.FuncMap{
	"join": strings.Join,
	"quote": func(items []string) string {
		quoted := make([]string, len(items))
		for i, s := range items {
			quoted[i] = fmt.Sprintf("%q", s)
		}
		return strings.Join(quoted, ", ")
	},
}

// Load reads the prompt file at path, or the built-in one when path is empty.
func Load(path string) (*Set, error) {
	b := defaultSpec
	if path != "" {
		var err error
		b, err = os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read prompts: %w", err)
		}
	}
	return Parse(b)
}

func Parse(b []byte) (*Set, error) {
	var spec Spec
	if err := yaml.Unmarshal(b, &spec); err != nil {
		return nil, fmt.Errorf("parse prompts: %w", err)
	}
	if spec.Repair == "" {
		return nil, fmt.Errorf("parse prompts: repair prompt is required")
	}
	if spec.Style.Temperature <= 0 {
		spec.Style.Temperature = 0.3
	}
	if spec.Style.MaxTokens <= 0 {
		spec.Style.MaxTokens = 1024
	}

	s := &Set{spec: spec}
	for _, t := range []struct {
		name string
		text string
		dst  **template.Template
	}{
		{"intro", spec.Intro, &s.intro},
		{"staged", spec.Staged, &s.staged},
		{"nested", spec.Nested, &s.nested},
		{"repair", spec.Repair, &s.repair},
	} {
		tmpl, err := template.New(t.name).Funcs(funcs).Parse(t.text)
		if err != nil {
			return nil, fmt.Errorf("parse %s prompt: %w", t.name, err)
		}
		*t.dst = tmpl
	}
	return s, nil
}

type systemData struct {
	Categories     []string
	ProductListMax int
	OptionsMax     int
}

// System renders the system prompt for contract with the live categories.
func (s *Set) System(contract string, categories []string) (string, error) {
	data := systemData{
		Categories:     categories,
		ProductListMax: validator.ProductListMax,
		OptionsMax:     validator.OptionsMax,
	}
	format := s.staged
	if contract == config.ContractNested {
		format = s.nested
	}

	var b strings.Builder
	if err := s.intro.Execute(&b, data); err != nil {
		return "", fmt.Errorf("render intro prompt: %w", err)
	}
	b.WriteString("\n")
	if err := format.Execute(&b, data); err != nil {
		return "", fmt.Errorf("render %s prompt: %w", contract, err)
	}
	return strings.TrimSpace(b.String()), nil
}

// Repair renders the corrective instruction that carries the model's own
// malformed output.
func (s *Set) Repair(raw string) (string, error) {
	var b strings.Builder
	if err := s.repair.Execute(&b, struct{ Raw string }{raw}); err != nil {
		return "", fmt.Errorf("render repair prompt: %w", err)
	}
	return strings.TrimSpace(b.String()), nil
}

func (s *Set) Temperature() float32 { return s.spec.Style.Temperature }

func (s *Set) MaxTokens() int { return s.spec.Style.MaxTokens }
