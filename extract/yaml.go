package extract

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// YAML parses extractor output as a YAML mapping. Sequence values are kept
// as ordered series; scalar values are wrapped into single-element series
// so the shape matches Table's output.
func YAML(text string) (Data, error) {
	var raw map[string]interface{}
	if err := yaml.Unmarshal([]byte(text), &raw); err != nil {
		return nil, fmt.Errorf("failed to parse YAML data: %w", err)
	}
	data := make(Data, len(raw))
	for key, val := range raw {
		if seq, ok := val.([]interface{}); ok {
			series := make([]Value, 0, len(seq))
			for _, item := range seq {
				series = append(series, fromScalar(item))
			}
			data[key] = series
			continue
		}
		data[key] = []Value{fromScalar(val)}
	}
	return data, nil
}

func fromScalar(v interface{}) Value {
	switch x := v.(type) {
	case float64:
		return Num(x)
	case int:
		return Num(float64(x))
	case int64:
		return Num(float64(x))
	default:
		return Str(fmt.Sprint(x))
	}
}
