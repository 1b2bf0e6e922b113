package stance

import (
	tiktoken "github.com/pkoukk/tiktoken-go"

	"github.com/wilhg/summon/pkg/tool"
)

// TokenEstimator estimates the token cost of text shown to a model.
type TokenEstimator func(text string) int

// RuneEstimator counts runes. It is the fallback when no tokenizer is available.
func RuneEstimator(text string) int { return len([]rune(text)) }

// NewTikTokenEstimator returns a TokenEstimator backed by tiktoken-go for the given model.
// If the model is unknown, or its encoding cannot be loaded, it returns an error.
func NewTikTokenEstimator(model string) (TokenEstimator, error) {
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		return nil, err
	}
	return func(text string) int {
		return len(enc.Encode(text, nil, nil))
	}, nil
}

// Entry summarizes one registered tool for the catalog listing.
type Entry struct {
	Name              string
	Fields            []tool.Field
	DescriptionTokens int
	SchemaTokens      int
}

// Describe lists the registry in order with the token cost of what a client
// sees for each tool: its description, and its input schema.
func Describe(reg *tool.Registry, est TokenEstimator) ([]Entry, int) {
	if est == nil {
		est = RuneEstimator
	}
	var total int
	out := make([]Entry, 0, reg.Len())
	for _, t := range reg.List() {
		e := Entry{
			Name:              t.Name,
			Fields:            t.Fields,
			DescriptionTokens: est(t.Description),
			SchemaTokens:      est(string(t.SchemaJSON())),
		}
		total += e.DescriptionTokens + e.SchemaTokens
		out = append(out, e)
	}
	return out, total
}
