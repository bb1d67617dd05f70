package httpclient

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseStatusCodes(t *testing.T) {
	tests := []struct {
		name        string
		input       string
		errContains string
		canonical   string
		in          []int
		notIn       []int
	}{
		{name: "empty string", input: ""},
		{name: "whitespace only", input: "   "},
		{name: "default retry set", input: "500,502-504", canonical: "500,502-504", in: []int{500, 502, 503, 504}, notIn: []int{200, 404, 501, 505}},
		{name: "single code", input: "429", canonical: "429", in: []int{429}, notIn: []int{428, 430}},
		{name: "with whitespace", input: " 500 , 502 - 504 ", canonical: "500,502-504", in: []int{500, 503}, notIn: []int{501}},
		{name: "trailing comma", input: "500,", canonical: "500", in: []int{500}},
		{name: "unsorted input", input: "503,429,500", canonical: "429,500,503", in: []int{429, 503}, notIn: []int{501}},
		{name: "adjacent codes merge", input: "500,501,502-504", canonical: "500-504", in: []int{501}},
		{name: "overlapping ranges merge", input: "500-503,502-510", canonical: "500-510", in: []int{510}, notIn: []int{511}},
		{name: "non numeric", input: "abc", errContains: "invalid status code"},
		{name: "non numeric range end", input: "500-x", errContains: "invalid status code"},
		{name: "reversed range", input: "504-500", errContains: "min > max"},
		{name: "out of range code", input: "700", errContains: "must be 100-599"},
		{name: "out of range span", input: "50-200", errContains: "must be 100-599"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			set, err := ParseStatusCodes(tt.input)
			if tt.errContains != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errContains)
				return
			}
			require.NoError(t, err)

			assert.Equal(t, tt.canonical, set.String())
			if len(tt.in) == 0 {
				assert.True(t, set.IsEmpty())
				return
			}
			for _, code := range tt.in {
				assert.True(t, set.Contains(code), "expected %d in set", code)
			}
			for _, code := range tt.notIn {
				assert.False(t, set.Contains(code), "expected %d not in set", code)
			}
		})
	}
}

func TestStatusCodeSet_NilSafe(t *testing.T) {
	var set *StatusCodeSet
	assert.True(t, set.IsEmpty())
	assert.False(t, set.Contains(500))
	assert.Empty(t, set.String())
}

func TestMustParseStatusCodes(t *testing.T) {
	assert.NotPanics(t, func() {
		set := MustParseStatusCodes(DefaultRetryStatusCodes)
		assert.True(t, set.Contains(502))
	})
	assert.Panics(t, func() {
		MustParseStatusCodes("bogus")
	})
}
