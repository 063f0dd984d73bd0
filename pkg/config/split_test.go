package config

import (
	"testing"
)

func TestSplitQuotedFields(t *testing.T) {
	in := `field'A' 'fieldB' fie'l\'d'C fieldD 'another field' fieldE`
	tgt := []string{"fieldA", "fieldB", "fiel'dC", "fieldD", "another field", "fieldE"}
	out := SplitQuotedFields(in, '\'')

	if len(tgt) != len(out) {
		t.Fatalf("expected %#v, got %#v (len mismatch)", tgt, out)
	}

	for i := range tgt {
		if tgt[i] != out[i] {
			t.Fatalf(" expected %#v, got %#v (mismatch at %d)", tgt, out, i)
		}
	}
}

func TestSplitDoubleQuotedFields(t *testing.T) {
	tests := []struct {
		name     string
		in       string
		expected []string
	}{
		{
			name:     "generic test case",
			in:       `field"A" "fieldB" fie"l'd"C "field\"D" "yet another field"`,
			expected: []string{"fieldA", "fieldB", "fiel'dC", "field\"D", "yet another field"},
		},
		{
			name:     "with empty string in the end",
			in:       `field"A" "" `,
			expected: []string{"fieldA", ""},
		},
		{
			name:     "with empty string at the beginning",
			in:       ` "" field"A"`,
			expected: []string{"", "fieldA"},
		},
		{
			name:     "lots of spaces",
			in:       `    field"A"   `,
			expected: []string{"fieldA"},
		},
		{
			name:     "only empty string",
			in:       ` "" "" "" """" "" `,
			expected: []string{"", "", "", "", ""},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := tt.in
			tgt := tt.expected
			out := SplitQuotedFields(in, '"')
			if len(tgt) != len(out) {
				t.Fatalf("expected %#v, got %#v (len mismatch)", tgt, out)
			}

			for i := range tgt {
				if tgt[i] != out[i] {
					t.Fatalf(" expected %#v, got %#v (mismatch at %d)", tgt, out, i)
				}
			}
		})
	}
}
