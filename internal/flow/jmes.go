package flow

import (
	"fmt"

	"zwop/internal/types"

	"github.com/goccy/go-json"
	"github.com/jmespath/go-jmespath"
)

// EvalAny returns the raw value selected by the JMESPath expression.
// It is safe to pass any decoded JSON (map[string]any, []any, etc.)
// It will return nil and no error if the expression does not match anything.
func EvalAny(expression string, payload any) (any, error) {
	v, err := jmespath.Search(expression, payload)
	if err != nil {
		return nil, fmt.Errorf("jmespath: %w", err)
	}
	return v, nil
}

// FilterClients evaluates expression against the list of client envelopes, as they
// appear in the store file but with bot API keys masked, so no query can select them.
// An empty expression returns the whole list.
func FilterClients(expression string, clients []types.Client) (any, error) {
	b, err := json.Marshal(types.RedactedRecords(clients))
	if err != nil {
		return nil, err
	}
	var doc []any
	if err := json.Unmarshal(b, &doc); err != nil {
		return nil, err
	}
	if expression == "" {
		return doc, nil
	}
	return EvalAny(expression, doc)
}
