package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCoerceBool(t *testing.T) {
	truthy := []interface{}{true, 1, int64(1), uint(1), float64(1), "1", "true", "TRUE", "True"}
	for _, in := range truthy {
		got, err := CoerceBool(in)
		require.NoError(t, err, "input %#v", in)
		assert.True(t, got, "input %#v", in)
	}

	falsy := []interface{}{false, 0, int64(0), uint(0), float64(0), "0", "false", "FALSE", "False"}
	for _, in := range falsy {
		got, err := CoerceBool(in)
		require.NoError(t, err, "input %#v", in)
		assert.False(t, got, "input %#v", in)
	}

	rejected := []interface{}{"yes", "no", "2", 2, 1.5, nil, []int{1}, map[string]int{}}
	for _, in := range rejected {
		_, err := CoerceBool(in)
		assert.Error(t, err, "input %#v", in)
	}
}
