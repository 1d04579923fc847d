package sanitizer

import (
	"strings"
)

type Strategy func(string) string

type Pipeline []Strategy

func (p Pipeline) Apply(s string) string {
	for _, fn := range p {
		s = fn(s)
	}
	return s
}

var emailPipeline = Pipeline{
	strings.TrimSpace,
	strings.ToLower,
}

var namePipeline = Pipeline{
	StripControl,
	TrimAndNormalize,
}

func NormalizeEmail(email string) string {
	return emailPipeline.Apply(email)
}

func NormalizeName(name string) string {
	return namePipeline.Apply(name)
}

// NormalizeToken trims opaque client identifiers such as idempotency keys and
// lock holder ids. Case is significant and kept.
func NormalizeToken(token string) string {
	return strings.TrimSpace(token)
}
