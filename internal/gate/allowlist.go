package gate

import (
	"sort"
	"strings"
)

// Allowlist decides whether a host is a trusted evidence source.
// Implementations must be safe for concurrent reads.
type Allowlist interface {
	Allows(host string) bool
}

// SuffixAllowlist trusts a host equal to, or a subdomain of, any configured
// suffix: "go.kr" trusts "law.go.kr" and "go.kr" but not "ago.kr".
// It is immutable after construction.
type SuffixAllowlist struct {
	suffixes []string
}

// NewSuffixAllowlist normalises suffixes (lower case, no surrounding dots or
// spaces) and drops empty entries and duplicates.
func NewSuffixAllowlist(suffixes ...string) *SuffixAllowlist {
	seen := make(map[string]struct{}, len(suffixes))
	out := make([]string, 0, len(suffixes))
	for _, s := range suffixes {
		s = strings.Trim(strings.ToLower(strings.TrimSpace(s)), ".")
		if s == "" {
			continue
		}
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	sort.Strings(out)
	return &SuffixAllowlist{suffixes: out}
}

func (a *SuffixAllowlist) Allows(host string) bool {
	if a == nil {
		return false
	}
	host = strings.TrimSuffix(strings.ToLower(strings.TrimSpace(host)), ".")
	if host == "" {
		return false
	}
	for _, s := range a.suffixes {
		if host == s || strings.HasSuffix(host, "."+s) {
			return true
		}
	}
	return false
}

// Suffixes returns a copy of the normalised suffix set.
func (a *SuffixAllowlist) Suffixes() []string {
	if a == nil {
		return nil
	}
	return append([]string(nil), a.suffixes...)
}
