// Package transcript accumulates live transcript fragments for one question.
package transcript

import (
	"regexp"
	"strings"
)

// A sentence mark glued to the next word gets one space. Digits are excluded so
// "3.5" and "v1.2" stay intact.
var sentenceGap = regexp.MustCompile(`([.!?])(\p{L})`)

// Normalize collapses all whitespace (newlines included) to single spaces,
// separates sentences and trims. Normalize(Normalize(s)) == Normalize(s).
func Normalize(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	return sentenceGap.ReplaceAllString(s, "$1 $2")
}

// Accumulator is the transcript buffer for the current question. It is not
// safe for concurrent use; the session loop owns it.
type Accumulator struct {
	b strings.Builder
}

// Append normalizes fragment and adds it after a separating space. Empty
// fragments are ignored.
func (a *Accumulator) Append(fragment string) {
	fragment = Normalize(fragment)
	if fragment == "" {
		return
	}
	if a.b.Len() > 0 {
		a.b.WriteByte(' ')
	}
	a.b.WriteString(fragment)
}

func (a *Accumulator) String() string {
	return Normalize(a.b.String())
}

func (a *Accumulator) Len() int {
	return a.b.Len()
}

func (a *Accumulator) Reset() {
	a.b.Reset()
}
