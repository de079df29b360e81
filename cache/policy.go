package cache

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Pattern matches keys or paths either by substring or by regular expression.
type Pattern struct {
	Expr  string
	Regex bool

	re *regexp.Regexp
}

// Substring returns a pattern matching any string that contains expr.
func Substring(expr string) Pattern {
	return Pattern{Expr: expr}
}

// Regexp returns a pattern backed by a compiled regular expression.
func Regexp(re *regexp.Regexp) Pattern {
	return Pattern{Expr: re.String(), Regex: true, re: re}
}

// Compile prepares a regex pattern. Substring patterns compile to themselves.
func (p Pattern) Compile() (Pattern, error) {
	if !p.Regex || p.re != nil {
		return p, nil
	}
	re, err := regexp.Compile(p.Expr)
	if err != nil {
		return p, fmt.Errorf("%w: pattern %q: %v", ErrInvalidPolicy, p.Expr, err)
	}
	p.re = re
	return p, nil
}

// Match reports whether s is matched by the pattern.
// An uncompiled regex pattern never matches.
func (p Pattern) Match(s string) bool {
	if p.Regex {
		return p.re != nil && p.re.MatchString(s)
	}
	return strings.Contains(s, p.Expr)
}

func (p Pattern) String() string {
	if p.Regex {
		return "re:" + p.Expr
	}
	return p.Expr
}

// Rule assigns a TTL to every path matched by Pattern.
type Rule struct {
	Pattern Pattern
	TTL     time.Duration
}

// Policy configures caching behavior.
type Policy struct {
	// DefaultTTL applies when no rule matches.
	// If zero, caching is disabled.
	DefaultTTL time.Duration

	// MaxTTL is the maximum allowed TTL. Rule TTLs are clamped to this.
	// If zero, no maximum is enforced.
	MaxTTL time.Duration

	// Methods lists the cacheable HTTP methods. Empty means GET only.
	Methods []string

	// Rules are consulted in order; the first match wins.
	Rules []Rule

	// Denylist excludes paths from caching even for cacheable methods.
	Denylist []Pattern
}

// DefaultPolicy returns the default caching policy.
// DefaultTTL: 5 minutes, MaxTTL: 1 hour, GET only, tiered endpoint rules.
func DefaultPolicy() Policy {
	return Policy{
		DefaultTTL: 5 * time.Minute,
		MaxTTL:     1 * time.Hour,
		Methods:    []string{"GET"},
		Rules:      DefaultRules(),
		Denylist:   DefaultDenylist(),
	}
}

// DefaultRules returns the tiered endpoint table: near-static reference data
// lives long, leaderboards and submissions short. The short rules precede
// contest so contest submissions and rankings keep the short TTL.
func DefaultRules() []Rule {
	const (
		long   = 30 * time.Minute
		medium = 10 * time.Minute
		short  = 2 * time.Minute
	)
	return []Rule{
		{Pattern: Substring("website"), TTL: long},
		{Pattern: Substring("languages"), TTL: long},
		{Pattern: Substring("problem/tags"), TTL: long},
		{Pattern: Substring("announcement"), TTL: medium},
		{Pattern: Substring("problem"), TTL: medium},
		{Pattern: Substring("submissions"), TTL: short},
		{Pattern: Substring("contest_rank"), TTL: short},
		{Pattern: Substring("user_rank"), TTL: short},
		{Pattern: Substring("contest"), TTL: medium},
	}
}

// DefaultDenylist returns paths whose responses must be fresh on every call.
func DefaultDenylist() []Pattern {
	return []Pattern{
		Substring("captcha"),
		Substring("logout"),
		Substring("session"),
		Substring("csrf"),
	}
}

// NoCachePolicy returns a policy that disables caching entirely.
func NoCachePolicy() Policy {
	return Policy{}
}

// Validate compiles regex patterns and checks TTLs.
// The returned policy is ready for use at request time.
func (p Policy) Validate() (Policy, error) {
	if p.DefaultTTL < 0 || p.MaxTTL < 0 {
		return p, fmt.Errorf("%w: negative TTL", ErrInvalidPolicy)
	}

	rules := make([]Rule, len(p.Rules))
	for i, r := range p.Rules {
		if r.TTL < 0 {
			return p, fmt.Errorf("%w: rule %q has negative TTL", ErrInvalidPolicy, r.Pattern.Expr)
		}
		if r.Pattern.Expr == "" {
			return p, fmt.Errorf("%w: rule %d has empty pattern", ErrInvalidPolicy, i)
		}
		compiled, err := r.Pattern.Compile()
		if err != nil {
			return p, err
		}
		rules[i] = Rule{Pattern: compiled, TTL: r.TTL}
	}

	deny := make([]Pattern, len(p.Denylist))
	for i, d := range p.Denylist {
		if d.Expr == "" {
			return p, fmt.Errorf("%w: denylist entry %d is empty", ErrInvalidPolicy, i)
		}
		compiled, err := d.Compile()
		if err != nil {
			return p, err
		}
		deny[i] = compiled
	}

	methods := make([]string, 0, len(p.Methods))
	for _, m := range p.Methods {
		methods = append(methods, strings.ToUpper(strings.TrimSpace(m)))
	}

	p.Rules = rules
	p.Denylist = deny
	p.Methods = methods
	return p, nil
}

// ShouldCache returns true if caching is enabled by this policy.
func (p Policy) ShouldCache() bool {
	return p.DefaultTTL > 0
}

// IsCacheable reports whether a request may be served from or stored in the cache.
func (p Policy) IsCacheable(method, path string) bool {
	if !p.ShouldCache() {
		return false
	}
	if !p.allowsMethod(method) {
		return false
	}
	for _, d := range p.Denylist {
		if d.Match(path) {
			return false
		}
	}
	return true
}

func (p Policy) allowsMethod(method string) bool {
	method = strings.ToUpper(strings.TrimSpace(method))
	if len(p.Methods) == 0 {
		return method == "GET"
	}
	for _, m := range p.Methods {
		if strings.EqualFold(m, method) {
			return true
		}
	}
	return false
}

// ResolveTTL returns the TTL for path: first matching rule, else DefaultTTL,
// clamped to MaxTTL.
func (p Policy) ResolveTTL(path string) time.Duration {
	ttl := p.DefaultTTL
	for _, r := range p.Rules {
		if r.Pattern.Match(path) {
			ttl = r.TTL
			break
		}
	}
	return p.EffectiveTTL(ttl)
}

// EffectiveTTL returns the TTL to use, applying defaults and clamping.
func (p Policy) EffectiveTTL(override time.Duration) time.Duration {
	ttl := override
	if ttl <= 0 {
		ttl = p.DefaultTTL
	}

	if p.MaxTTL > 0 && ttl > p.MaxTTL {
		ttl = p.MaxTTL
	}

	return ttl
}
