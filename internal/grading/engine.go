package grading

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
)

var ErrBadResponse = errors.New("response is not an option index")

// Key is the minimal view of a question needed for grading a choice.
type Key struct {
	Correct int
}

// Choice grades single-choice responses by option index. Responses may
// arrive as JSON numbers, json.Number or numeric strings; both sides are
// compared as ints. An index that names no option is simply incorrect.
type Choice struct{}

func (Choice) Grade(k Key, response any) (selected int, correct bool, err error) {
	selected, err = ParseOption(response)
	if err != nil {
		return 0, false, err
	}
	return selected, selected == k.Correct, nil
}

// ParseOption coerces a decoded JSON value into an option index.
func ParseOption(v any) (int, error) {
	switch t := v.(type) {
	case int:
		return t, nil
	case int64:
		return int(t), nil
	case float64:
		return wholeNumber(t)
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return 0, fmt.Errorf("%w: %q", ErrBadResponse, t.String())
		}
		return wholeNumber(f)
	case string:
		f, ok := parseFloatLoose(t)
		if !ok {
			return 0, fmt.Errorf("%w: %q", ErrBadResponse, t)
		}
		return wholeNumber(f)
	case nil:
		return 0, fmt.Errorf("%w: missing", ErrBadResponse)
	default:
		return 0, fmt.Errorf("%w: unsupported type %T", ErrBadResponse, v)
	}
}

func wholeNumber(f float64) (int, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return 0, fmt.Errorf("%w: %v", ErrBadResponse, f)
	}
	return int(f), nil
}
