package authroles

import (
	"fmt"
	"strings"

	jmespath "github.com/jmespath-community/go-jmespath"
	domainauth "github.com/target/institute-web/internal/domain/auth"
)

// DefaultHintExpression locates the role hint inside session user metadata.
const DefaultHintExpression = "user_metadata.role"

// HintExtractor reads the lower-trust role hint from session metadata using a JMESPath expression.
// The hint is a display fallback for clients; server-side access decisions never consult it.
type HintExtractor struct {
	expr string
}

// NewHintExtractor compiles expr (DefaultHintExpression when blank).
func NewHintExtractor(expr string) (*HintExtractor, error) {
	if strings.TrimSpace(expr) == "" {
		expr = DefaultHintExpression
	}
	if _, err := jmespath.Compile(expr); err != nil {
		return nil, fmt.Errorf("compile role hint expression %q: %w", expr, err)
	}
	return &HintExtractor{expr: expr}, nil
}

// MustHintExtractor is NewHintExtractor that panics on a bad expression; for package-level defaults.
func MustHintExtractor(expr string) *HintExtractor {
	h, err := NewHintExtractor(expr)
	if err != nil {
		panic(err)
	}
	return h
}

// Extract returns the role hint found in metadata, or RoleNone.
func (h *HintExtractor) Extract(metadata map[string]any) domainauth.Role {
	if h == nil || len(metadata) == 0 {
		return domainauth.RoleNone
	}
	doc := map[string]any{"user_metadata": metadata}
	v, err := jmespath.Search(h.expr, doc)
	if err != nil {
		return domainauth.RoleNone
	}
	s, ok := v.(string)
	if !ok {
		return domainauth.RoleNone
	}
	return domainauth.ParseRole(s)
}
