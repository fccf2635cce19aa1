package normalize

import "encoding/json"

// Question-shaped output arrives in a handful of recurring forms. Each form
// gets an explicit projection instead of ad hoc type sniffing:
//
//	["q1", "q2"]                      — accepted as-is
//	[{"question": "..."}, ...]        — projected down to the question field
//	{"question": "..."}               — wrapped into a one-element list
//	anything else structured          — stringified, one element
//	unparseable                       — empty list
func Questions(v any) []string {
	switch val := v.(type) {
	case []any:
		if qs, ok := stringList(val); ok {
			return qs
		}
		if qs, ok := questionObjectList(val); ok {
			return qs
		}
	case map[string]any:
		if q, ok := questionField(val); ok {
			return []string{q}
		}
	case string:
		if val != "" {
			return []string{val}
		}
		return nil
	case nil:
		return nil
	}

	// Last resort: deterministic stringification of whatever was parsed.
	if data, err := json.Marshal(v); err == nil {
		return []string{string(data)}
	}
	return nil
}

// stringList accepts a list only when every element is a plain string.
func stringList(list []any) ([]string, bool) {
	qs := make([]string, 0, len(list))
	for _, item := range list {
		s, ok := item.(string)
		if !ok {
			return nil, false
		}
		qs = append(qs, s)
	}
	return qs, true
}

// questionObjectList accepts a list only when every element is an object,
// projecting each down to its string-valued "question" field.
func questionObjectList(list []any) ([]string, bool) {
	for _, item := range list {
		if _, ok := item.(map[string]any); !ok {
			return nil, false
		}
	}
	var qs []string
	for _, item := range list {
		if q, ok := questionField(item.(map[string]any)); ok {
			qs = append(qs, q)
		}
	}
	if len(qs) == 0 {
		return nil, false
	}
	return qs, true
}

func questionField(obj map[string]any) (string, bool) {
	q, ok := obj["question"].(string)
	if !ok || q == "" {
		return "", false
	}
	return q, true
}
