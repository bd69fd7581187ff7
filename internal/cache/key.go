package cache

import (
	"fetchguard/internal/types"
	"net/url"
	"reflect"
	"sort"
	"strconv"
	"strings"
)

// Params are the query parameters that take part in a cache key. Values must be strings, bools,
// integers or floats.
type Params map[string]any

// Key derives the cache key for an endpoint and its params: the endpoint alone when there are no
// params, otherwise "endpoint?k1=v1&k2=v2" with keys sorted and both sides query-escaped. The key is
// also the request target, so an endpoint that already carries a query is extended with '&'.
// Anything writing the cache directly MUST use this function.
func Key(endpoint string, params Params) (string, error) {
	if len(params) == 0 {
		return endpoint, nil
	}
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(endpoint)
	if strings.Contains(endpoint, "?") {
		b.WriteByte('&')
	} else {
		b.WriteByte('?')
	}
	for i, k := range keys {
		v, err := formatParam(params[k])
		if err != nil {
			return "", types.Err(types.ErrInvalidParam, err, "param %q", k)
		}
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(url.QueryEscape(k))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(v))
	}
	return b.String(), nil
}

func formatParam(v any) (string, error) {
	switch t := v.(type) {
	case string:
		return t, nil
	case bool:
		return strconv.FormatBool(t), nil
	case nil:
		return "", types.ErrInvalidParam
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(rv.Int(), 10), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return strconv.FormatUint(rv.Uint(), 10), nil
	case reflect.Float32:
		return strconv.FormatFloat(rv.Float(), 'g', -1, 32), nil
	case reflect.Float64:
		return strconv.FormatFloat(rv.Float(), 'g', -1, 64), nil
	default:
		return "", types.ErrInvalidParam
	}
}
