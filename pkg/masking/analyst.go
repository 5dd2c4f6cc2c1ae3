package masking

import (
	"context"

	"github.com/codeready-toolchain/responder/pkg/llm"
)

// Analyst wraps an llm.Analyst and masks every prompt before it leaves the
// process. The narrative coming back is not masked; the model never saw the
// secrets, so it cannot echo them.
type Analyst struct {
	inner llm.Analyst
	svc   *Service
}

var _ llm.Analyst = (*Analyst)(nil)

// NewAnalyst decorates inner with prompt masking. Returns inner unchanged
// when svc is nil.
func NewAnalyst(inner llm.Analyst, svc *Service) llm.Analyst {
	if svc == nil || inner == nil {
		return inner
	}
	return &Analyst{inner: inner, svc: svc}
}

// Generate implements llm.Analyst.
func (a *Analyst) Generate(ctx context.Context, system, prompt string) (string, error) {
	return a.inner.Generate(ctx, system, a.svc.MaskText(prompt))
}
