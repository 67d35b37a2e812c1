package entities

import (
	"fmt"
	"math"
	"reflect"
	"sort"
	"strconv"
	"strings"
)

// Attribute values travel through CLI strings, SQLite scans and JSON payloads.
// The helpers below coerce all three into the canonical Go types an entity
// stores: string, int64, *int64, bool and sorted []string.

func asString(v any) (string, error) {
	switch x := v.(type) {
	case nil:
		return "", nil
	case string:
		return x, nil
	case []byte:
		return string(x), nil
	case int64:
		return strconv.FormatInt(x, 10), nil
	case int:
		return strconv.Itoa(x), nil
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), nil
	case bool:
		return strconv.FormatBool(x), nil
	default:
		return "", fmt.Errorf("cannot use %T as text", v)
	}
}

func asInt64(v any) (int64, error) {
	switch x := v.(type) {
	case nil:
		return 0, nil
	case int64:
		return x, nil
	case int:
		return int64(x), nil
	case int32:
		return int64(x), nil
	case float64:
		if x != math.Trunc(x) {
			return 0, fmt.Errorf("%v is not a whole number", x)
		}
		return int64(x), nil
	case bool:
		if x {
			return 1, nil
		}
		return 0, nil
	case []byte:
		return asInt64(string(x))
	case string:
		s := strings.TrimSpace(x)
		if s == "" {
			return 0, nil
		}
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("%q is not a whole number", x)
		}
		return n, nil
	default:
		return 0, fmt.Errorf("cannot use %T as a number", v)
	}
}

func asNullInt64(v any) (*int64, error) {
	switch x := v.(type) {
	case nil:
		return nil, nil
	case *int64:
		if x == nil {
			return nil, nil
		}
		n := *x
		return &n, nil
	case string:
		if strings.TrimSpace(x) == "" {
			return nil, nil
		}
	}
	n, err := asInt64(v)
	if err != nil {
		return nil, err
	}
	return &n, nil
}

func asBool(v any) (bool, error) {
	switch x := v.(type) {
	case nil:
		return false, nil
	case bool:
		return x, nil
	case string:
		s := strings.TrimSpace(x)
		if s == "" {
			return false, nil
		}
		b, err := strconv.ParseBool(s)
		if err != nil {
			return false, fmt.Errorf("%q is not a boolean", x)
		}
		return b, nil
	default:
		n, err := asInt64(v)
		if err != nil {
			return false, err
		}
		return n != 0, nil
	}
}

// asIDs accepts a list of ids in any of its transport forms. A plain string
// is treated as a comma-separated list.
func asIDs(v any) ([]string, error) {
	var raw []string
	switch x := v.(type) {
	case nil:
	case []string:
		raw = x
	case []any:
		raw = make([]string, 0, len(x))
		for _, item := range x {
			s, err := asString(item)
			if err != nil {
				return nil, err
			}
			raw = append(raw, s)
		}
	case string:
		raw = strings.Split(x, ",")
	default:
		return nil, fmt.Errorf("cannot use %T as a list of ids", v)
	}
	return SortedIDs(raw), nil
}

// SortedIDs returns a sorted copy of ids with blanks and duplicates removed.
// To-many relations are always represented this way so that two reads of the
// same set compare equal regardless of retrieval order.
func SortedIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func optionalID(id string) any {
	if id == "" {
		return nil
	}
	return id
}

func optionalInt(n *int64) any {
	if n == nil {
		return nil
	}
	return *n
}

// NormalizeValue maps an attribute value onto its canonical comparable form:
// whole numbers become int64, id lists become sorted []string.
func NormalizeValue(v any) any {
	switch x := v.(type) {
	case int:
		return int64(x)
	case int32:
		return int64(x)
	case float64:
		if x == math.Trunc(x) && !math.IsInf(x, 0) {
			return int64(x)
		}
		return x
	case *int64:
		if x == nil {
			return nil
		}
		return *x
	case []byte:
		return string(x)
	case []string:
		return SortedIDs(x)
	case []any:
		ids, err := asIDs(x)
		if err != nil {
			return x
		}
		return ids
	default:
		return v
	}
}

// ValuesEqual compares two attribute values after normalization.
func ValuesEqual(a, b any) bool {
	return reflect.DeepEqual(NormalizeValue(a), NormalizeValue(b))
}
