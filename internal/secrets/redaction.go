// Package secrets scrubs secret-shaped substrings (DSNs, API keys, bearer
// tokens, JWTs, private key blocks) from log output before it reaches any
// sink.
package secrets

import "regexp"

// Redactor replaces every match of its patterns with a fixed placeholder.
type Redactor struct {
	patterns    []*regexp.Regexp
	replacement string
}

var defaultPatterns = []string{
	`postgres://[^:]+:[^@]+@[^/]+/[^\s?"']+`,
	`mysql://[^:]+:[^@]+@[^/]+/[^\s?"']+`,
	`mongodb://[^:]+:[^@]+@[^/]+/[^\s?"']+`,
	`(?i)(?:api[_-]?key|token|secret|password|pwd)["\s]*[:=]["\s]*[^\s"',}]+`,
	`(?i)bearer\s+[a-zA-Z0-9\-\._~\+/]+=*`,
	`(?i)basic\s+[a-zA-Z0-9\+/]+=*`,
	`eyJ[a-zA-Z0-9_-]*\.eyJ[a-zA-Z0-9_-]*\.[a-zA-Z0-9_-]*`, // JWT
	`(?i)AKIA[0-9A-Z]{16}`,                                 // AWS access key id
	`(?i)sk-[a-zA-Z0-9]{48}`,                               // OpenAI-style key
	`-----BEGIN[A-Z\s]+PRIVATE KEY-----[\s\S]*?-----END[A-Z\s]+PRIVATE KEY-----`,
}

// NewRedactor compiles the default pattern set.
func NewRedactor() *Redactor {
	patterns := make([]*regexp.Regexp, len(defaultPatterns))
	for i, p := range defaultPatterns {
		patterns[i] = regexp.MustCompile(p)
	}
	return &Redactor{patterns: patterns, replacement: "[REDACTED]"}
}

// RedactString replaces every pattern match in input with the placeholder.
func (r *Redactor) RedactString(input string) string {
	result := input
	for _, p := range r.patterns {
		result = p.ReplaceAllString(result, r.replacement)
	}
	return result
}

// RedactBytes is RedactString over a byte slice, the form internal/logging's
// writer wrapper needs.
func (r *Redactor) RedactBytes(input []byte) []byte {
	return []byte(r.RedactString(string(input)))
}
