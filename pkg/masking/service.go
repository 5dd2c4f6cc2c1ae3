// Package masking scrubs credentials from gathered context before it reaches
// the LLM, the trace, or persistence. Masking is defensive: on any parse
// problem the original text passes through a plain regex sweep instead.
package masking

import (
	"log/slog"
	"regexp"
)

// MaskedValue replaces every matched secret.
const MaskedValue = "***MASKED***"

// CompiledPattern is a pre-compiled secret-matching regex.
type CompiledPattern struct {
	Name        string
	Regex       *regexp.Regexp
	Replacement string
}

// builtinPatterns covers the credential shapes that show up in pod logs,
// manifests and API payloads. An empty replacement means the whole match is
// replaced with MaskedValue; assignments keep their key so JSON and YAML
// documents stay parseable after masking.
var builtinPatterns = []struct {
	name, pattern, replacement string
}{
	{"bearer_token", `(?i)bearer\s+[a-z0-9\-._~+/]{16,}=*`, ""},
	{"api_key_assignment", `(?i)(api[_-]?key|apikey|token|secret|password|passwd)(["']?\s*[:=]\s*["']?)[^\s"',;]{8,}`, "${1}${2}" + MaskedValue},
	{"aws_access_key", `AKIA[0-9A-Z]{16}`, ""},
	{"slack_token", `xox[baprs]-[0-9A-Za-z\-]{10,}`, ""},
	{"github_token", `gh[pousr]_[0-9A-Za-z]{36,}`, ""},
	{"private_key_block", `(?s)-----BEGIN [A-Z ]*PRIVATE KEY-----.*?-----END [A-Z ]*PRIVATE KEY-----`, ""},
	{"basic_auth_url", `(?i)([a-z][a-z0-9+.\-]*://)[^/\s:@]+:[^/\s:@]+@`, "${1}" + MaskedValue + "@"},
}

// Masker is a code-based masker for content that needs structural awareness
// beyond regex matching.
type Masker interface {
	Name() string
	// AppliesTo is a cheap pre-check (string contains, not parsing).
	AppliesTo(data string) bool
	// Mask returns the masked result; on processing errors it must return
	// the original data.
	Mask(data string) string
}

// Service applies masking. Stateless aside from compiled patterns; safe for
// concurrent use.
type Service struct {
	patterns []*CompiledPattern
	maskers  []Masker
}

// NewService compiles the built-in patterns plus any extra ones. Invalid
// extras are logged and skipped.
func NewService(extraPatterns map[string]string) *Service {
	s := &Service{}

	for _, p := range builtinPatterns {
		replacement := p.replacement
		if replacement == "" {
			replacement = MaskedValue
		}
		// Built-in patterns are tested; compilation cannot fail.
		s.patterns = append(s.patterns, &CompiledPattern{
			Name:        p.name,
			Regex:       regexp.MustCompile(p.pattern),
			Replacement: replacement,
		})
	}
	for name, pattern := range extraPatterns {
		compiled, err := regexp.Compile(pattern)
		if err != nil {
			slog.Error("Failed to compile masking pattern, skipping",
				"pattern", name, "error", err)
			continue
		}
		s.patterns = append(s.patterns, &CompiledPattern{
			Name:        name,
			Regex:       compiled,
			Replacement: MaskedValue,
		})
	}

	s.maskers = append(s.maskers, &KubernetesSecretMasker{})
	return s
}

// MaskText applies the code maskers and then every regex pattern.
func (s *Service) MaskText(text string) string {
	if s == nil || text == "" {
		return text
	}
	for _, m := range s.maskers {
		if m.AppliesTo(text) {
			text = m.Mask(text)
		}
	}
	for _, p := range s.patterns {
		text = p.Regex.ReplaceAllString(text, p.Replacement)
	}
	return text
}

// MaskPayload walks a JSON-shaped payload and masks every string value in
// place of the original structure. Non-string leaves pass through untouched.
func (s *Service) MaskPayload(payload any) any {
	if s == nil {
		return payload
	}
	switch v := payload.(type) {
	case string:
		return s.MaskText(v)
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, val := range v {
			out[k] = s.MaskPayload(val)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, val := range v {
			out[i] = s.MaskPayload(val)
		}
		return out
	default:
		return payload
	}
}
