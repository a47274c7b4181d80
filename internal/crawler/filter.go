package crawler

import (
	"fmt"
	"path"
	"regexp"
	"strings"
)

// FilterPolicyVersion identifies the built-in rule table. Bump it whenever
// DefaultFilterPolicy changes so stored runs can tell which rules applied.
const FilterPolicyVersion = 1

// RuleKind selects how a Rule's Pattern is matched
type RuleKind int

const (
	// SuffixBlock rejects addresses whose lower-cased path ends with Pattern
	SuffixBlock RuleKind = iota
	// SubstringBlock rejects addresses whose lower-cased string contains Pattern
	SubstringBlock
	// HostSubstringBlock rejects addresses on Host (or below it) whose string contains Pattern
	HostSubstringBlock
	// PatternBlock rejects addresses matching the regular expression Pattern
	PatternBlock
)

func (k RuleKind) String() string {
	switch k {
	case SuffixBlock:
		return "suffix"
	case SubstringBlock:
		return "substring"
	case HostSubstringBlock:
		return "host-substring"
	case PatternBlock:
		return "pattern"
	default:
		return fmt.Sprintf("RuleKind(%d)", int(k))
	}
}

// Rule is one row of the block table
type Rule struct {
	Kind    RuleKind
	Pattern string
	Host    string // HostSubstringBlock only
}

// FilterPolicy is the data the link filter is built from
type FilterPolicy struct {
	Version    int
	Scope      string   // every accepted host equals Scope or ends with "."+Scope
	Extensions []string // accepted path extensions, without the dot
	Rules      []Rule
}

// Non-page resources: documents, archives, media, executables
var resourceSuffixes = []string{
	".pdf", ".doc", ".docx", ".ppt", ".pptx", ".xls", ".xlsx", ".ps", ".rtf",
	".zip", ".tar", ".gz", ".tgz", ".bz2", ".rar", ".7z",
	".jpg", ".jpeg", ".png", ".gif", ".svg", ".ico", ".bmp", ".tif", ".tiff",
	".mp3", ".mp4", ".m4a", ".mov", ".avi", ".wav", ".ogg", ".webm",
	".exe", ".dmg", ".msi", ".iso", ".bin", ".apk",
}

// DefaultFilterPolicy returns the built-in policy for scope
func DefaultFilterPolicy(scope string) FilterPolicy {
	scope = normalizeScope(scope)

	rules := []Rule{
		// Calendars and date archives produce unbounded near-duplicate pages
		{Kind: SubstringBlock, Pattern: "calendar"},
		{Kind: SubstringBlock, Pattern: "day"},
		{Kind: SubstringBlock, Pattern: "year"},
		// Tag and label permutations, lots of sublinks and no new hosts
		{Kind: HostSubstringBlock, Host: "solve." + scope},
		{Kind: HostSubstringBlock, Host: "kb." + scope},
		{Kind: HostSubstringBlock, Host: "wikis." + scope},
	}
	for _, suffix := range resourceSuffixes {
		rules = append(rules, Rule{Kind: SuffixBlock, Pattern: suffix})
	}

	return FilterPolicy{
		Version:    FilterPolicyVersion,
		Scope:      scope,
		Extensions: []string{"html", "htm", "shtml", "xhtml"},
		Rules:      rules,
	}
}

// WithExcludePatterns returns a copy of p with one PatternBlock per pattern appended
func (p FilterPolicy) WithExcludePatterns(patterns ...string) FilterPolicy {
	rules := make([]Rule, len(p.Rules), len(p.Rules)+len(patterns))
	copy(rules, p.Rules)
	for _, pattern := range patterns {
		rules = append(rules, Rule{Kind: PatternBlock, Pattern: pattern})
	}
	p.Rules = rules
	return p
}

type compiledRule struct {
	Rule
	re *regexp.Regexp
}

// Filter decides whether an address is worth fetching. It holds no mutable
// state, so one Filter can be shared between goroutines.
type Filter struct {
	policy     FilterPolicy
	extensions map[string]struct{}
	rules      []compiledRule
}

// NewFilter compiles policy. Invalid regular expressions and an empty
// scope are reported here rather than on first use.
func NewFilter(policy FilterPolicy) (*Filter, error) {
	policy.Scope = normalizeScope(policy.Scope)
	if policy.Scope == "" {
		return nil, fmt.Errorf("filter scope cannot be empty")
	}

	f := &Filter{
		policy:     policy,
		extensions: make(map[string]struct{}, len(policy.Extensions)),
		rules:      make([]compiledRule, 0, len(policy.Rules)),
	}

	for _, ext := range policy.Extensions {
		ext = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(ext)), ".")
		if ext != "" {
			f.extensions[ext] = struct{}{}
		}
	}

	for i, rule := range policy.Rules {
		cr := compiledRule{Rule: rule}
		switch rule.Kind {
		case SuffixBlock, SubstringBlock:
			cr.Pattern = strings.ToLower(rule.Pattern)
			if cr.Pattern == "" {
				return nil, fmt.Errorf("rule %d: empty %s pattern", i, rule.Kind)
			}
		case HostSubstringBlock:
			cr.Host = strings.ToLower(strings.Trim(rule.Host, "."))
			cr.Pattern = strings.ToLower(rule.Pattern)
			if cr.Host == "" {
				return nil, fmt.Errorf("rule %d: host-substring rule without host", i)
			}
		case PatternBlock:
			re, err := regexp.Compile(rule.Pattern)
			if err != nil {
				return nil, fmt.Errorf("rule %d: invalid exclude pattern %q: %w", i, rule.Pattern, err)
			}
			cr.re = re
		default:
			return nil, fmt.Errorf("rule %d: unknown kind %s", i, rule.Kind)
		}
		f.rules = append(f.rules, cr)
	}

	return f, nil
}

// Policy returns the policy the filter was built from
func (f *Filter) Policy() FilterPolicy {
	return f.policy
}

// Scope returns the normalized scope suffix
func (f *Filter) Scope() string {
	return f.policy.Scope
}

// Allow reports whether a is eligible for fetching
func (f *Filter) Allow(a Address) bool {
	ok, _ := f.Verdict(a)
	return ok
}

// Verdict is Allow plus the reason for a rejection, for debug logging
func (f *Filter) Verdict(a Address) (bool, string) {
	host, ok := a.Domain()
	if !ok {
		return false, "no domain"
	}

	if !f.InScope(host) {
		return false, "out of scope"
	}

	if scheme := a.Scheme(); scheme != "http" && scheme != "https" {
		return false, "scheme " + scheme
	}

	// No extension means probably html
	if ext := strings.TrimPrefix(path.Ext(a.Path()), "."); ext != "" {
		if _, accepted := f.extensions[strings.ToLower(ext)]; !accepted {
			return false, "extension " + ext
		}
	}

	full := strings.ToLower(a.String())
	lowerPath := strings.ToLower(a.Path())
	for _, rule := range f.rules {
		if rule.matches(host, full, lowerPath, a.String()) {
			return false, rule.Kind.String() + " " + rule.describe()
		}
	}

	return true, ""
}

// InScope reports whether host equals the scope or is a subdomain of it
func (f *Filter) InScope(host string) bool {
	host = strings.TrimSuffix(strings.ToLower(host), ".")
	scope := f.policy.Scope
	return host == scope || strings.HasSuffix(host, "."+scope)
}

func (r compiledRule) matches(host, full, lowerPath, raw string) bool {
	switch r.Kind {
	case SuffixBlock:
		return strings.HasSuffix(lowerPath, r.Pattern)
	case SubstringBlock:
		return strings.Contains(full, r.Pattern)
	case HostSubstringBlock:
		if host != r.Host && !strings.HasSuffix(host, "."+r.Host) {
			return false
		}
		return strings.Contains(full, r.Pattern)
	case PatternBlock:
		return r.re.MatchString(raw)
	}
	return false
}

func (r compiledRule) describe() string {
	if r.Kind == HostSubstringBlock {
		if r.Pattern == "" {
			return r.Host
		}
		return r.Host + " " + r.Pattern
	}
	return r.Pattern
}

func normalizeScope(scope string) string {
	return strings.Trim(strings.ToLower(strings.TrimSpace(scope)), ".")
}
