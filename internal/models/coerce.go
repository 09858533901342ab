package models

import (
	"fmt"
	"strings"
)

// CoerceBool normalizes the boolean-ish values accepted by admin forms and
// imported tour definitions: native bools, numeric 0/1 and the strings
// "0"/"1"/"true"/"false" (case-insensitive). Any other input is a
// validation error.
func CoerceBool(value interface{}) (bool, error) {
	switch v := value.(type) {
	case bool:
		return v, nil
	case int:
		return coerceNumericBool(float64(v))
	case int64:
		return coerceNumericBool(float64(v))
	case uint:
		return coerceNumericBool(float64(v))
	case float64:
		return coerceNumericBool(v)
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "0", "false":
			return false, nil
		case "1", "true":
			return true, nil
		}
		return false, fmt.Errorf("cannot coerce %q to bool", v)
	default:
		return false, fmt.Errorf("cannot coerce value of type %T to bool", value)
	}
}

func coerceNumericBool(v float64) (bool, error) {
	switch v {
	case 0:
		return false, nil
	case 1:
		return true, nil
	}
	return false, fmt.Errorf("cannot coerce numeric value %v to bool", v)
}
