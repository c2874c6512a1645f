package authz

import (
	"context"
	_ "embed"
	"fmt"
	"sort"
	"strings"

	"github.com/open-policy-agent/opa/rego"
	"github.com/open-policy-agent/opa/storage/inmem"
)

//go:embed authz.rego
var policyContent string

// RegoPolicy evaluates the embedded Rego module against each profile.
type RegoPolicy struct {
	allow   rego.PreparedEvalQuery
	reasons rego.PreparedEvalQuery
}

// NewRegoPolicy prepares the policy with the allowed email domains.
// An empty list allows any profile that has an email.
func NewRegoPolicy(ctx context.Context, allowedDomains []string) (*RegoPolicy, error) {
	domains := make([]any, 0, len(allowedDomains))
	for _, d := range allowedDomains {
		if d = strings.TrimSpace(d); d != "" {
			domains = append(domains, d)
		}
	}

	prepare := func(query string) (rego.PreparedEvalQuery, error) {
		store := inmem.NewFromObject(map[string]any{
			"allowed_domains": domains,
		})
		return rego.New(
			rego.Query(query),
			rego.Module("authz.rego", policyContent),
			rego.Store(store),
		).PrepareForEval(ctx)
	}

	allow, err := prepare("data.socialauth.authz.allow")
	if err != nil {
		return nil, fmt.Errorf("failed to prepare policy query: %w", err)
	}
	reasons, err := prepare("data.socialauth.authz.reasons")
	if err != nil {
		return nil, fmt.Errorf("failed to prepare reasons query: %w", err)
	}

	return &RegoPolicy{allow: allow, reasons: reasons}, nil
}

// Name returns the policy name.
func (p *RegoPolicy) Name() string {
	return "RegoDomainRestriction"
}

// Authorize evaluates the allow rule for profile.
func (p *RegoPolicy) Authorize(ctx context.Context, profile Profile) error {
	input := map[string]any{
		"id":       profile.ID,
		"provider": profile.Provider,
		"name":     profile.Name,
		"email":    profile.Email,
	}

	results, err := p.allow.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return fmt.Errorf("failed to evaluate policy: %w", err)
	}
	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return fmt.Errorf("%w: policy evaluation returned no results", ErrAccessDenied)
	}

	allowed, ok := results[0].Expressions[0].Value.(bool)
	if !ok {
		return fmt.Errorf("%w: policy evaluation returned non-boolean result", ErrAccessDenied)
	}
	if allowed {
		return nil
	}

	reasons, err := p.denyReasons(ctx, input)
	if err != nil {
		return err
	}
	return fmt.Errorf("%w: %s", ErrAccessDenied, strings.Join(reasons, "; "))
}

func (p *RegoPolicy) denyReasons(ctx context.Context, input map[string]any) ([]string, error) {
	results, err := p.reasons.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return nil, fmt.Errorf("failed to evaluate reasons: %w", err)
	}

	var reasons []string
	if len(results) > 0 && len(results[0].Expressions) > 0 {
		if set, ok := results[0].Expressions[0].Value.([]any); ok {
			for _, r := range set {
				if s, ok := r.(string); ok {
					reasons = append(reasons, s)
				}
			}
		}
	}
	if len(reasons) == 0 {
		reasons = []string{"denied by policy"}
	}
	sort.Strings(reasons)
	return reasons, nil
}
