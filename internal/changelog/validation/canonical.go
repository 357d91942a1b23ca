package validation

import (
	"bytes"
	"encoding/json"
	"fmt"

	"policysync/internal/changelog/models"
)

// Canonical returns the byte sequence a legacy domain signature covers:
// compact JSON with object keys sorted, null members dropped and no HTML
// escaping. Numbers keep their original literal form.
func Canonical(domain *models.DomainData) ([]byte, error) {
	raw, err := json.Marshal(domain)
	if err != nil {
		return nil, err
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return nil, err
	}
	if _, ok := doc.(map[string]any); !ok {
		return nil, fmt.Errorf("domain data is not a JSON object")
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(dropNulls(doc)); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

func dropNulls(v any) any {
	switch val := v.(type) {
	case map[string]any:
		for k, child := range val {
			if child == nil {
				delete(val, k)
				continue
			}
			val[k] = dropNulls(child)
		}
		return val
	case []any:
		for i, child := range val {
			val[i] = dropNulls(child)
		}
		return val
	default:
		return val
	}
}
