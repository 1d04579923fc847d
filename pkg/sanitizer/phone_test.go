package sanitizer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizePhone(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "already E.164", input: "+16502530000", want: "+16502530000"},
		{name: "with spaces", input: "+1 650 253 0000", want: "+16502530000"},
		{name: "with dashes and parentheses", input: "+1 (650) 253-0000", want: "+16502530000"},
		{name: "national US number", input: "(650) 253-0000", want: "+16502530000"},
		{name: "international UK number", input: "+44 20 7031 3000", want: "+442070313000"},
		{name: "leading and trailing spaces", input: "  +16502530000  ", want: "+16502530000"},
		{name: "empty string", input: "", want: ""},
		{name: "only whitespace", input: "   ", want: ""},
		{name: "text is left for the validator", input: "n/a", want: "n/a"},
		{name: "too short is left for the validator", input: "+1", want: "+1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NormalizePhone(tt.input)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, got, NormalizePhone(got), "not idempotent")
		})
	}
}
