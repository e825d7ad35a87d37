package transcript

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"hello\nworld", "hello world"},
		{"  lots   of\t\tspace  ", "lots of space"},
		{"done.Next one!Really?Yes", "done. Next one! Really? Yes"},
		{"version 3.5 and v1.2", "version 3.5 and v1.2"},
		{"wait...what", "wait... what"},
		{"", ""},
		{" \n ", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Normalize(tt.in), "input %q", tt.in)
	}
}

func TestNormalizeIsIdempotent(t *testing.T) {
	inputs := []string{
		"a.b.c",
		"so.\n\nI think.It works",
		"émigré.Über alles",
		"  x  ",
		"ends with a period.",
	}
	for _, in := range inputs {
		once := Normalize(in)
		assert.Equal(t, once, Normalize(once), "input %q", in)
	}
}

func TestAccumulatorJoinsFragments(t *testing.T) {
	var a Accumulator
	a.Append("hello")
	a.Append("")
	a.Append("  \n")
	a.Append("world.\nI")
	a.Append("am here")

	assert.Equal(t, "hello world. I am here", a.String())
	assert.Equal(t, a.String(), Normalize(a.String()))
}

func TestAccumulatorJoinsSentenceAcrossFragments(t *testing.T) {
	var a Accumulator
	a.Append("first.")
	a.Append("Second")
	assert.Equal(t, "first. Second", a.String())
}

func TestAccumulatorReset(t *testing.T) {
	var a Accumulator
	a.Append("stale answer")
	a.Reset()
	assert.Equal(t, 0, a.Len())
	assert.Equal(t, "", a.String())

	a.Append("fresh")
	assert.Equal(t, "fresh", a.String())
}
