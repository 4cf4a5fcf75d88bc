// Package params resolves display attributes from device records by trying ordered lists of
// candidate paths through the attribute tree.
package params

import (
	"encoding/json"
	"sort"
	"strconv"
	"strings"

	"genieacs-portal/internal/device/domain"
)

// NotAvailable is returned when no candidate path resolves.
const NotAvailable = "N/A"

const (
	wildcard       = "*"
	aliasPrefix    = "DeviceID."
	aliasBlock     = "DeviceID"
	encodedHyphen  = "%2D"
	valueField     = "_value"
	internalPrefix = "_"
)

// Resolve returns the value of the first path in paths that resolves in rec, formatted as
// text, or NotAvailable. It never mutates rec.
func Resolve(rec domain.Record, paths []string) string {
	if rec == nil {
		return NotAvailable
	}
	for _, path := range paths {
		if v, ok := resolvePath(rec, path); ok {
			return v
		}
	}
	return NotAvailable
}

// ResolveOr is Resolve with fallback substituted for NotAvailable.
func ResolveOr(rec domain.Record, paths []string, fallback string) string {
	if v := Resolve(rec, paths); v != NotAvailable {
		return v
	}
	return fallback
}

func resolvePath(rec domain.Record, path string) (string, bool) {
	if strings.HasPrefix(path, aliasPrefix) {
		if v, ok := resolveAlias(rec, path); ok {
			return v, true
		}
	}
	if strings.HasPrefix(path, internalPrefix) {
		raw, ok := rec[path]
		if !ok {
			return "", false
		}
		return format(raw), true
	}
	return walk(map[string]any(rec), strings.Split(path, "."))
}

func resolveAlias(rec domain.Record, path string) (string, bool) {
	block, ok := rec[aliasBlock].(map[string]any)
	if !ok {
		return "", false
	}
	prop := strings.SplitN(strings.TrimPrefix(path, aliasPrefix), ".", 2)[0]
	raw, ok := block[prop]
	if !ok {
		return "", false
	}
	if s, ok := raw.(string); ok {
		return strings.Replace(s, encodedHyphen, "-", 1), true
	}
	return format(raw), true
}

// walk descends node along segs. A wildcard segment tries each numeric child in ascending
// order and backtracks until one resolves the rest of the path.
func walk(node any, segs []string) (string, bool) {
	branch, ok := node.(map[string]any)
	if !ok {
		return "", false
	}
	if len(segs) == 0 {
		raw, ok := branch[valueField]
		if !ok {
			return "", false
		}
		return format(raw), true
	}
	if segs[0] != wildcard {
		child, ok := branch[segs[0]]
		if !ok {
			return "", false
		}
		return walk(child, segs[1:])
	}
	for _, key := range instanceKeys(branch) {
		if v, ok := walk(branch[key], segs[1:]); ok {
			return v, true
		}
	}
	return "", false
}

func instanceKeys(branch map[string]any) []string {
	keys := make([]string, 0, len(branch))
	for k := range branch {
		if isInstanceKey(k) {
			keys = append(keys, k)
		}
	}
	sort.Slice(keys, func(i, j int) bool {
		a, _ := strconv.ParseUint(keys[i], 10, 64)
		b, _ := strconv.ParseUint(keys[j], 10, 64)
		if a != b {
			return a < b
		}
		return keys[i] < keys[j]
	})
	return keys
}

func isInstanceKey(k string) bool {
	if k == "" {
		return false
	}
	for _, c := range k {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

func format(raw any) string {
	switch v := raw.(type) {
	case nil:
		return ""
	case string:
		return v
	case json.Number:
		return v.String()
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case []any:
		parts := make([]string, len(v))
		for i, item := range v {
			parts[i] = format(item)
		}
		return strings.Join(parts, ",")
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return ""
		}
		return string(b)
	}
}
