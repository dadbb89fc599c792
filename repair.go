package intention

import (
	"encoding/json"
	"fmt"
	"regexp"

	"github.com/kaptinlin/jsonrepair"
)

// jsonObjectPattern extracts the outermost {...} span from prose-wrapped
// model output.
var jsonObjectPattern = regexp.MustCompile(`(?s)\{.*\}`)

// Repairer turns raw model output into a schema-valid document, applying a
// small fixed number of structural repair passes before giving up. Generative
// providers routinely wrap JSON in prose or emit almost-JSON; repair is
// cheaper than a re-ask and bounded so a hopeless response fails fast.
type Repairer struct {
	maxAttempts int
}

// NewRepairer creates a repairer that tries at most maxAttempts repair passes
// after the initial parse.
func NewRepairer(maxAttempts int) *Repairer {
	if maxAttempts < 0 {
		maxAttempts = 0
	}
	return &Repairer{maxAttempts: maxAttempts}
}

// Validate parses raw and checks it against schema. repaired reports whether
// a repair pass was needed. On failure the returned error is classified
// malformed; the caller attaches the raw response for diagnostics.
func (r *Repairer) Validate(raw []byte, schema *ResponseSchema) (fields map[string]any, repaired bool, err error) {
	// Pass 0: the response is already valid JSON.
	if fields, err = parseAndCheck(raw, schema); err == nil {
		return fields, false, nil
	}
	lastErr := err

	for attempt := 0; attempt < r.maxAttempts; attempt++ {
		var candidate []byte
		switch attempt {
		case 0:
			// Structural repair of almost-JSON (unquoted keys, single
			// quotes, trailing commas).
			fixed, repairErr := jsonrepair.JSONRepair(string(raw))
			if repairErr != nil {
				lastErr = repairErr
				continue
			}
			candidate = []byte(fixed)
		default:
			// Extract an embedded object from prose, then repair it.
			match := jsonObjectPattern.Find(raw)
			if match == nil {
				lastErr = fmt.Errorf("no JSON object found in response")
				continue
			}
			fixed, repairErr := jsonrepair.JSONRepair(string(match))
			if repairErr != nil {
				lastErr = repairErr
				continue
			}
			candidate = []byte(fixed)
		}

		if fields, err = parseAndCheck(candidate, schema); err == nil {
			return fields, true, nil
		}
		lastErr = err
	}

	return nil, false, &ProviderError{
		Kind:    KindMalformed,
		Message: "response failed schema validation after repair",
		Cause:   lastErr,
	}
}

func parseAndCheck(raw []byte, schema *ResponseSchema) (map[string]any, error) {
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	if schema != nil {
		if err := schema.Validate(doc); err != nil {
			return nil, err
		}
	}
	return doc, nil
}
