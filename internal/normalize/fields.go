package normalize

import (
	"fmt"
	"strconv"
	"strings"
)

type object map[string]any

func asObject(v any) (object, bool) {
	m, ok := v.(map[string]any)
	return object(m), ok
}

// lookup returns the first present key, trying each alias in order.
func (o object) lookup(keys ...string) (any, bool) {
	for _, k := range keys {
		if v, ok := o[k]; ok && v != nil {
			return v, true
		}
	}
	return nil, false
}

func (o object) str(keys ...string) string {
	v, ok := o.lookup(keys...)
	if !ok {
		return ""
	}
	return toString(v)
}

func (o object) float(def float64, keys ...string) float64 {
	v, ok := o.lookup(keys...)
	if !ok {
		return def
	}
	switch t := v.(type) {
	case float64:
		return t
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(t), "%")), 64)
		if err != nil {
			return def
		}
		return f
	}
	return def
}

func (o object) integer(def int, keys ...string) int {
	f := o.float(float64(def), keys...)
	return int(f)
}

func (o object) stringList(keys ...string) []string {
	v, ok := o.lookup(keys...)
	if !ok {
		return []string{}
	}
	switch t := v.(type) {
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			if s := toString(item); s != "" {
				out = append(out, s)
			}
		}
		return out
	case string:
		out := []string{}
		for _, part := range strings.Split(t, ",") {
			if p := strings.TrimSpace(part); p != "" {
				out = append(out, p)
			}
		}
		return out
	}
	return []string{}
}

func (o object) child(keys ...string) object {
	v, ok := o.lookup(keys...)
	if !ok {
		return object{}
	}
	if m, ok := asObject(v); ok {
		return m
	}
	return object{}
}

func (o object) list(keys ...string) []any {
	v, ok := o.lookup(keys...)
	if !ok {
		return nil
	}
	if l, ok := v.([]any); ok {
		return l
	}
	return nil
}

func (o object) stringMap(keys ...string) map[string]string {
	m := o.child(keys...)
	if len(m) == 0 {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		if s := toString(v); s != "" {
			out[k] = s
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func toString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	case []any:
		parts := make([]string, 0, len(t))
		for _, item := range t {
			if s := toString(item); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, ", ")
	default:
		return strings.TrimSpace(fmt.Sprint(t))
	}
}

// unwrap descends into root[key] when the provider nested the payload under a
// wrapper key, otherwise returns root unchanged.
func unwrap(root any, keys ...string) any {
	if o, ok := asObject(root); ok {
		if v, ok := o.lookup(keys...); ok {
			return v
		}
	}
	return root
}
