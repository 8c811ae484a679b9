package types

import (
	"fmt"
	"time"
)

// Builtin type IDs. The numbering leaves gaps for related additions;
// everything below UserIDStart is reserved.
const (
	Generic    ID = 0
	Number     ID = 10
	Float      ID = 11
	Int        ID = 12
	Bool       ID = 20
	String     ID = 30
	Collection ID = 40
	List       ID = 41
	Map        ID = 50
	JSON       ID = 51
	Bytes      ID = 60
	Time       ID = 110
	Path       ID = 120
)

// registerBuiltins loads the standard type table and casts into r.
// Generic is already present from NewBare.
func registerBuiltins(r *Registry) {
	builtins := []PortType{
		{Name: "number", ID: Number, Base: NoBase, DefaultFactory: func() any { return float64(0) }, Validator: validateNumber},
		{Name: "float", ID: Float, Base: Number, DefaultFactory: func() any { return float64(0) }, Validator: validateNumber},
		{Name: "int", ID: Int, Base: Number, DefaultFactory: func() any { return 0 }, Validator: validateInt},
		{Name: "bool", ID: Bool, Base: NoBase, DefaultFactory: func() any { return false }, Validator: validateBool},
		{Name: "string", ID: String, Base: NoBase, DefaultFactory: func() any { return "" }, Validator: validateString},
		{Name: "collection", ID: Collection, Base: NoBase},
		{Name: "list", ID: List, Base: Collection, DefaultFactory: func() any { return []any{} }},
		{Name: "map", ID: Map, Base: NoBase, DefaultFactory: func() any { return map[string]any{} }},
		{Name: "json", ID: JSON, Base: Map},
		{Name: "bytes", ID: Bytes, Base: NoBase, DefaultFactory: func() any { return []byte(nil) }},
		{Name: "time", ID: Time, Base: NoBase},
		{Name: "path", ID: Path, Base: NoBase, DefaultFactory: func() any { return "" }, Validator: validateString},
	}
	for _, pt := range builtins {
		r.MustRegister(pt)
	}

	casts := []struct {
		src, dst ID
		fn       ConvertFunc
	}{
		{Int, Float, castToFloat},
		{Int, String, castToString},
		{Float, String, castToString},
		{Bool, Int, castBoolToInt},
		{Bool, Float, castBoolToFloat},
		{Bool, String, castToString},
		{String, Path, castStringToPath},
		{String, Time, castStringToTime},
	}
	for _, c := range casts {
		if err := r.RegisterCast(c.src, c.dst, c.fn); err != nil {
			panic(err)
		}
	}
}

func castToFloat(v any) (any, error) {
	return AsFloat64(v)
}

func castToString(v any) (any, error) {
	return AsString(v), nil
}

func castBoolToInt(v any) (any, error) {
	b, ok := v.(bool)
	if !ok {
		return nil, fmt.Errorf("types: expected bool, got %T", v)
	}
	if b {
		return 1, nil
	}
	return 0, nil
}

func castBoolToFloat(v any) (any, error) {
	b, ok := v.(bool)
	if !ok {
		return nil, fmt.Errorf("types: expected bool, got %T", v)
	}
	if b {
		return float64(1), nil
	}
	return float64(0), nil
}

func castStringToPath(v any) (any, error) {
	s, ok := v.(string)
	if !ok {
		return nil, fmt.Errorf("types: expected string, got %T", v)
	}
	return s, nil
}

func castStringToTime(v any) (any, error) {
	s, ok := v.(string)
	if !ok {
		return nil, fmt.Errorf("types: expected string, got %T", v)
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil, fmt.Errorf("types: parse time: %w", err)
	}
	return t, nil
}

func validateNumber(v any) error {
	switch v.(type) {
	case float64, float32, int, int32, int64, uint, uint32, uint64:
		return nil
	}
	return fmt.Errorf("types: %T is not numeric", v)
}

func validateInt(v any) error {
	switch v.(type) {
	case int, int32, int64, uint, uint32, uint64:
		return nil
	}
	return fmt.Errorf("types: %T is not an integer", v)
}

func validateBool(v any) error {
	if _, ok := v.(bool); !ok {
		return fmt.Errorf("types: %T is not a bool", v)
	}
	return nil
}

func validateString(v any) error {
	if _, ok := v.(string); !ok {
		return fmt.Errorf("types: %T is not a string", v)
	}
	return nil
}
