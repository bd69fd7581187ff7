package orchestrator

import (
	"fmt"
	"math"

	"github.com/goccy/go-json"
	"github.com/jmespath/go-jmespath"
)

// EvalAny returns the raw value selected by the JMESPath expression from a JSON body.
// It will return nil and no error if the expression does not match anything.
func EvalAny(expression string, body []byte) (any, error) {
	var doc any
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("decode body: %w", err)
	}
	v, err := jmespath.Search(expression, doc)
	if err != nil {
		return nil, fmt.Errorf("jmespath: %w", err)
	}
	return v, nil
}

// EvalCount selects a non-negative whole number, e.g. the total item count of a collection.
// ok is false when the expression matches nothing or something that is not a count.
func EvalCount(expression string, body []byte) (n int, ok bool, err error) {
	v, err := EvalAny(expression, body)
	if err != nil || v == nil {
		return 0, false, err
	}
	f, isNum := v.(float64)
	if !isNum || f < 0 || f != math.Trunc(f) {
		return 0, false, nil
	}
	// float64(math.MaxInt) rounds up to 2^63, which does not fit an int.
	if f >= float64(math.MaxInt) {
		return math.MaxInt, true, nil
	}
	return int(f), true, nil
}
