package usage

import "strings"

// Model is a named context-window preset.
type Model struct {
	Name          string `json:"name" yaml:"name"`
	ContextWindow int    `json:"context_window" yaml:"context_window"`
}

// Models lists the built-in presets in display order.
var Models = []Model{
	{Name: "Gemini 2.0 Flash", ContextWindow: 1_000_000},
	{Name: "Gemini 1.5 Pro", ContextWindow: 2_000_000},
	{Name: "Claude 3.5 Sonnet", ContextWindow: 200_000},
	{Name: "GPT-4o", ContextWindow: 128_000},
	{Name: "GPT-4 Turbo", ContextWindow: 128_000},
}

// LookupModel finds a preset by case-insensitive name.
func LookupModel(name string) (Model, bool) {
	name = strings.TrimSpace(name)
	for _, m := range Models {
		if strings.EqualFold(m.Name, name) {
			return m, true
		}
	}
	return Model{}, false
}

// NextModel returns the next preset with a different window than contextWindow,
// wrapping around. Unknown windows start at the first preset.
func NextModel(contextWindow int) Model {
	for i, m := range Models {
		if m.ContextWindow != contextWindow {
			continue
		}
		for j := 1; j < len(Models); j++ {
			next := Models[(i+j)%len(Models)]
			if next.ContextWindow != contextWindow {
				return next
			}
		}
		return m
	}
	return Models[0]
}

// ModelName returns the first preset name for a window, or "Custom".
func ModelName(contextWindow int) string {
	for _, m := range Models {
		if m.ContextWindow == contextWindow {
			return m.Name
		}
	}
	return "Custom"
}
