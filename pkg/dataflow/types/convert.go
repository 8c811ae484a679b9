package types

import (
	"fmt"
	"strconv"
)

// AsFloat64 converts a value to float64 for numeric flow between ports.
func AsFloat64(v any) (float64, error) {
	switch val := v.(type) {
	case float64:
		return val, nil
	case float32:
		return float64(val), nil
	case int:
		return float64(val), nil
	case int32:
		return float64(val), nil
	case int64:
		return float64(val), nil
	case uint:
		return float64(val), nil
	case uint32:
		return float64(val), nil
	case uint64:
		return float64(val), nil
	case string:
		f, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return 0, fmt.Errorf("types: %q is not a number", val)
		}
		return f, nil
	default:
		return 0, fmt.Errorf("types: cannot convert %T to float64", v)
	}
}

// AsInt64 converts a value to int64. Floats convert only when integral.
func AsInt64(v any) (int64, error) {
	switch val := v.(type) {
	case int:
		return int64(val), nil
	case int32:
		return int64(val), nil
	case int64:
		return val, nil
	case uint:
		return int64(val), nil
	case uint32:
		return int64(val), nil
	case uint64:
		return int64(val), nil
	case float64:
		if val != float64(int64(val)) {
			return 0, fmt.Errorf("types: %v is not an integer", val)
		}
		return int64(val), nil
	case float32:
		return AsInt64(float64(val))
	case string:
		i, err := strconv.ParseInt(val, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("types: %q is not an integer", val)
		}
		return i, nil
	default:
		return 0, fmt.Errorf("types: cannot convert %T to int64", v)
	}
}

// AsString renders a value as a string.
func AsString(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case bool:
		return strconv.FormatBool(val)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case float64:
		return strconv.FormatFloat(val, 'g', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(val), 'g', -1, 32)
	case []byte:
		return string(val)
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", val)
	}
}

// IsTruthy reports whether a value is truthy: nil is false, bools are
// themselves, empty strings and zero numbers are false, everything
// else is true.
func IsTruthy(v any) bool {
	if v == nil {
		return false
	}
	switch val := v.(type) {
	case bool:
		return val
	case string:
		return val != ""
	case int:
		return val != 0
	case int32:
		return val != 0
	case int64:
		return val != 0
	case float64:
		return val != 0
	case float32:
		return val != 0
	default:
		return true
	}
}
