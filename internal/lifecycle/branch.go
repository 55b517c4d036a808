// Package lifecycle turns raw point-of-sale records into per-customer
// timelines: it canonicalizes branches, applies cancellation semantics,
// removes duplicate swipes and derives lifetime visit aggregates.
package lifecycle

import (
	"fmt"
	"strings"

	"golang.org/x/text/unicode/norm"

	"golang-branch-analytics/internal/models"
)

// BranchRule maps labels containing any of the keywords to a branch
type BranchRule struct {
	Branch   models.Branch `json:"branch" mapstructure:"branch"`
	Keywords []string      `json:"keywords" mapstructure:"keywords"`
}

// DefaultBranchRules returns the rule order of the current store network.
// 강남구청 must precede 강남 since every 강남구청 label also contains 강남.
func DefaultBranchRules() []BranchRule {
	return []BranchRule{
		{Branch: models.BranchGangnamGuOffice, Keywords: []string{"강남구청"}},
		{Branch: models.BranchGiheung, Keywords: []string{"기흥"}},
		{Branch: models.BranchYeouido, Keywords: []string{"여의도", "브라이튼"}},
		{Branch: models.BranchMokdong, Keywords: []string{"목동"}},
		{Branch: models.BranchWonju, Keywords: []string{"원주"}},
		{Branch: models.BranchGangnam, Keywords: []string{"강남"}},
	}
}

// BranchCanonicalizer applies ordered substring rules to free-text labels
type BranchCanonicalizer struct {
	rules []BranchRule
}

// NewBranchCanonicalizer validates the rules and normalizes their keywords
func NewBranchCanonicalizer(rules []BranchRule) (*BranchCanonicalizer, error) {
	if len(rules) == 0 {
		rules = DefaultBranchRules()
	}

	normalized := make([]BranchRule, 0, len(rules))
	for i, rule := range rules {
		branch := models.Branch(norm.NFC.String(strings.TrimSpace(string(rule.Branch))))
		if branch == "" {
			return nil, fmt.Errorf("rule %d: branch cannot be empty", i)
		}
		if branch == models.BranchOther {
			return nil, fmt.Errorf("rule %d: %s is reserved for unmatched labels", i, models.BranchOther)
		}

		var keywords []string
		for _, kw := range rule.Keywords {
			kw = norm.NFC.String(strings.TrimSpace(kw))
			if kw != "" {
				keywords = append(keywords, kw)
			}
		}
		if len(keywords) == 0 {
			return nil, fmt.Errorf("rule %d (%s): at least one keyword is required", i, branch)
		}
		normalized = append(normalized, BranchRule{Branch: branch, Keywords: keywords})
	}

	return &BranchCanonicalizer{rules: normalized}, nil
}

// Canonicalize returns the branch of the first matching rule, or BranchOther
func (bc *BranchCanonicalizer) Canonicalize(label string) models.Branch {
	label = norm.NFC.String(label)
	for _, rule := range bc.rules {
		for _, kw := range rule.Keywords {
			if strings.Contains(label, kw) {
				return rule.Branch
			}
		}
	}
	return models.BranchOther
}

// Rules returns a copy of the normalized rules in evaluation order
func (bc *BranchCanonicalizer) Rules() []BranchRule {
	out := make([]BranchRule, len(bc.rules))
	copy(out, bc.rules)
	return out
}
