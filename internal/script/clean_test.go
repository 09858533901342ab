package script

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClean(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "single object is wrapped in an array",
			in:   `{"a":1}`,
			want: `[{"a":1}]`,
		},
		{
			name: "adjacent objects get commas and a wrapper",
			in:   `{"a":1}{"b":2}`,
			want: `[{"a":1},{"b":2}]`,
		},
		{
			name: "whitespace runs collapse and punctuation is tightened",
			in:   "[ { \"a\" :  1 ,\n\t \"b\" : 2 } ]",
			want: `[{"a":1,"b":2}]`,
		},
		{
			name: "NaN and Infinity become null",
			in:   `{"a": NaN, "b": Infinity, "c": -Infinity}`,
			want: `[{"a":null,"b":null,"c":null}]`,
		},
		{
			name: "python style booleans are lowercased",
			in:   `{"a": True, "b": False}`,
			want: `[{"a":true,"b":false}]`,
		},
		{
			name: "trailing commas are dropped",
			in:   `[{"a":1,},{"b":2,},]`,
			want: `[{"a":1},{"b":2}]`,
		},
		{
			name: "doubled backslashes normalize",
			in:   `{"a":"line\\nbreak"}`,
			want: `[{"a":"line\nbreak"}]`,
		},
		{
			name: "bare quotes inside string values are escaped",
			in:   `{"title":"the "best" tour"}`,
			want: `[{"title":"the \"best\" tour"}]`,
		},
		{
			name: "empty input stays empty",
			in:   "   ",
			want: "",
		},
		{
			name: "already valid array passes through",
			in:   `[{"element":"#id","title":"Hi"}]`,
			want: `[{"element":"#id","title":"Hi"}]`,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Clean(tc.in)
			assert.Equal(t, tc.want, got)

			// Every non-empty cleaned result must be valid JSON.
			if got != "" {
				var parsed []map[string]interface{}
				assert.NoError(t, json.Unmarshal([]byte(got), &parsed), "cleaned output must parse")
			}
		})
	}
}

func TestCleanIsIdempotent(t *testing.T) {
	inputs := []string{
		`{"a":1}{"b":2}`,
		`{"a": NaN,}`,
		`[{"title":"the "best" tour"}]`,
	}

	for _, in := range inputs {
		once := Clean(in)
		twice := Clean(once)
		assert.Equal(t, once, twice, "input %q", in)
	}
}

func TestParse(t *testing.T) {
	t.Run("returns the cleaned script", func(t *testing.T) {
		cleaned, err := Parse(`{"element":"#a","title":"A"}`)
		require.NoError(t, err)
		assert.Equal(t, `[{"element":"#a","title":"A"}]`, cleaned)
	})

	t.Run("rejects unrecoverable scripts", func(t *testing.T) {
		_, err := Parse(`{"element": "#a", "title": `)
		assert.Error(t, err)
	})

	t.Run("rejects empty scripts", func(t *testing.T) {
		_, err := Parse("  ")
		assert.Error(t, err)
	})
}
