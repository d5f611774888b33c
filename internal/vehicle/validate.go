package vehicle

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
)

// ErrInvalid reports a payload that is not a list of well-formed vehicle states.
var ErrInvalid = errors.New("unexpected vehicle payload format")

var fields = [...]string{"id", "lat", "lon", "speed", "direction"}

// Decode reads exactly one JSON document from r and validates it.
func Decode(r io.Reader) ([]State, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()
	var payload any
	if err := dec.Decode(&payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, fmt.Errorf("%w: trailing data after JSON value", ErrInvalid)
	}
	return Validate(payload)
}

// Validate checks a decoded JSON value. Only an array whose every element is an
// object carrying numeric id, lat, lon, speed and direction is accepted; one bad
// element rejects the whole payload.
func Validate(payload any) ([]State, error) {
	items, ok := payload.([]any)
	if !ok {
		return nil, fmt.Errorf("%w: expected array, got %s", ErrInvalid, kindOf(payload))
	}
	out := make([]State, 0, len(items))
	for i, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: element %d is %s, not an object", ErrInvalid, i, kindOf(item))
		}
		var nums [len(fields)]float64
		for j, name := range fields {
			raw, present := obj[name]
			if !present {
				return nil, fmt.Errorf("%w: element %d has no %q", ErrInvalid, i, name)
			}
			f, ok := number(raw)
			if !ok {
				return nil, fmt.Errorf("%w: element %d field %q is %s, not a number", ErrInvalid, i, name, kindOf(raw))
			}
			nums[j] = f
		}
		if nums[0] != math.Trunc(nums[0]) || math.Abs(nums[0]) > maxSafeID {
			return nil, fmt.Errorf("%w: element %d id %v is not an integer", ErrInvalid, i, nums[0])
		}
		out = append(out, State{
			ID:        int64(nums[0]),
			Lat:       nums[1],
			Lon:       nums[2],
			Speed:     nums[3],
			Direction: nums[4],
		})
	}
	return out, nil
}

func number(v any) (float64, bool) {
	switch t := v.(type) {
	case json.Number:
		f, err := t.Float64()
		if err != nil || math.IsInf(f, 0) {
			return 0, false
		}
		return f, true
	case float64:
		return t, !math.IsNaN(t) && !math.IsInf(t, 0)
	default:
		return 0, false
	}
}

func kindOf(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case bool:
		return "boolean"
	case string:
		return "string"
	case json.Number, float64:
		return "number"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	default:
		return fmt.Sprintf("%T", v)
	}
}
