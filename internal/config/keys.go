package config

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
)

// A key addresses one leaf of Config by its json tags joined with dots,
// for example "playback.speed". Leaves tagged secret:"true" are masked when
// listed.
type field struct {
	key    string
	index  []int
	typ    reflect.Type
	secret bool
}

var fields = collectFields(reflect.TypeOf(Config{}), "", nil)

func collectFields(t reflect.Type, prefix string, index []int) []field {
	var out []field
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		name, _, _ := strings.Cut(sf.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			continue
		}
		key := name
		if prefix != "" {
			key = prefix + "." + name
		}
		idx := append(append([]int{}, index...), i)
		if sf.Type.Kind() == reflect.Struct {
			out = append(out, collectFields(sf.Type, key, idx)...)
			continue
		}
		out = append(out, field{key: key, index: idx, typ: sf.Type, secret: sf.Tag.Get("secret") == "true"})
	}
	return out
}

func lookupField(key string) (field, bool) {
	for _, f := range fields {
		if f.key == key {
			return f, true
		}
	}
	return field{}, false
}

// Keys returns every config key in declaration order.
func Keys() []string {
	out := make([]string, len(fields))
	for i, f := range fields {
		out[i] = f.key
	}
	return out
}

// IsSecretKey reports whether key holds a secret.
func IsSecretKey(key string) bool {
	f, ok := lookupField(key)
	return ok && f.secret
}

// Flatten returns every leaf of cfg keyed by its dotted key.
func Flatten(cfg *Config) map[string]any {
	v := reflect.ValueOf(cfg).Elem()
	out := make(map[string]any, len(fields))
	for _, f := range fields {
		out[f.key] = v.FieldByIndex(f.index).Interface()
	}
	return out
}

// MaskSecrets returns a copy of flat with secret values shown as "***xxxx",
// where xxxx is the last 4 characters. Empty values stay empty.
func MaskSecrets(flat map[string]any) map[string]any {
	out := make(map[string]any, len(flat))
	for k, v := range flat {
		s, ok := v.(string)
		if IsSecretKey(k) && ok && s != "" {
			v = maskSecret(s)
		}
		out[k] = v
	}
	return out
}

func maskSecret(s string) string {
	if len(s) <= 4 {
		return "***" + s
	}
	return "***" + s[len(s)-4:]
}

// parseValue converts raw into the Go type of the key's field. String fields
// take raw verbatim; everything else must be valid JSON for its type.
func parseValue(f field, raw string) (any, error) {
	if f.typ.Kind() == reflect.String {
		return raw, nil
	}
	ptr := reflect.New(f.typ)
	if err := json.Unmarshal([]byte(raw), ptr.Interface()); err != nil {
		return nil, fmt.Errorf("%s: %q is not a valid %s", f.key, raw, f.typ)
	}
	return ptr.Elem().Interface(), nil
}

// setPath stores v in the nested map m under the dotted key parts, creating
// intermediate maps and replacing scalars that are in the way.
func setPath(m map[string]any, parts []string, v any) {
	for _, p := range parts[:len(parts)-1] {
		next, ok := m[p].(map[string]any)
		if !ok {
			next = make(map[string]any)
			m[p] = next
		}
		m = next
	}
	m[parts[len(parts)-1]] = v
}
