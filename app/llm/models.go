package llm

import "strings"

// Model describes a completion model and its output-token ceiling.
type Model struct {
	Name            string
	MaxOutputTokens int
}

// FallbackModel is the cheapest model known to follow the extraction schema.
var FallbackModel = Model{Name: "gpt-4o-mini", MaxOutputTokens: 16384}

var knownModels = map[string]Model{
	"gpt-4o-mini":   FallbackModel,
	"gpt-4o":        {Name: "gpt-4o", MaxOutputTokens: 16384},
	"gpt-4.1-mini":  {Name: "gpt-4.1-mini", MaxOutputTokens: 32768},
	"gpt-4.1":       {Name: "gpt-4.1", MaxOutputTokens: 32768},
	"gpt-3.5-turbo": {Name: "gpt-3.5-turbo", MaxOutputTokens: 4096},
}

// ResolveModel returns the model for name and whether it was recognised.
func ResolveModel(name string) (Model, bool) {
	m, ok := knownModels[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return FallbackModel, false
	}
	return m, true
}
