// Package rules holds the vulnerability-scanner signatures used to score requests.
//
// A Set is split into four tiers. Each tier carries one point value that applies to
// every signature in it:
//
//   - full paths, matched exactly against the lower-cased request path
//   - partial URLs, matched as substrings of the lower-cased raw URL (query included)
//   - bad suffixes, matched against the end of the lower-cased request path
//   - bad partial paths, matched as substrings of the lower-cased raw URL
//
// Signatures must be lower-case and follow the per-tier prefix conventions checked by
// Validate. A Set is treated as immutable once it has been compiled into a Classifier.
package rules

import (
	"fmt"
	"strings"
	"unicode"
)

// Tier identifies one of the four signature categories.
type Tier int

const (
	TierFullPath Tier = iota
	TierPartialURL
	TierBadSuffix
	TierBadPartialPath
)

// Tiers lists every tier in evaluation order.
var Tiers = []Tier{TierFullPath, TierPartialURL, TierBadSuffix, TierBadPartialPath}

func (t Tier) String() string {
	switch t {
	case TierFullPath:
		return "full_path"
	case TierPartialURL:
		return "partial_url"
	case TierBadSuffix:
		return "bad_suffix"
	case TierBadPartialPath:
		return "bad_partial_path"
	default:
		return fmt.Sprintf("tier(%d)", int(t))
	}
}

// Scores holds the point value of each tier.
type Scores struct {
	FullPath       uint16 `json:"full_path"`
	PartialURL     uint16 `json:"partial_url"`
	BadSuffix      uint16 `json:"bad_suffix"`
	BadPartialPath uint16 `json:"bad_partial_path"`
}

// DefaultScores returns the default tier values.
func DefaultScores() Scores {
	return Scores{
		FullPath:       10,
		PartialURL:     5,
		BadSuffix:      1,
		BadPartialPath: 1,
	}
}

// For returns the point value of the given tier.
func (s Scores) For(t Tier) uint16 {
	switch t {
	case TierFullPath:
		return s.FullPath
	case TierPartialURL:
		return s.PartialURL
	case TierBadSuffix:
		return s.BadSuffix
	case TierBadPartialPath:
		return s.BadPartialPath
	default:
		return 0
	}
}

// Set is a complete rule set: the signatures of all four tiers plus their scores.
type Set struct {
	FullPaths       []string `json:"full_paths"`
	PartialURLs     []string `json:"partial_urls"`
	BadSuffixes     []string `json:"bad_suffixes"`
	BadPartialPaths []string `json:"bad_partial_paths"`
	Scores          Scores   `json:"scores"`
}

// Default returns the built-in rule set. The returned slices are copies and may be
// modified by the caller.
func Default() Set {
	return Set{
		FullPaths:       clone(defaultFullPaths),
		PartialURLs:     clone(defaultPartialURLs),
		BadSuffixes:     clone(defaultBadSuffixes),
		BadPartialPaths: clone(defaultBadPartialPaths),
		Scores:          DefaultScores(),
	}
}

// Signatures returns the signatures of one tier.
func (s Set) Signatures(t Tier) []string {
	switch t {
	case TierFullPath:
		return s.FullPaths
	case TierPartialURL:
		return s.PartialURLs
	case TierBadSuffix:
		return s.BadSuffixes
	case TierBadPartialPath:
		return s.BadPartialPaths
	default:
		return nil
	}
}

// ValidationError reports a signature or score that breaks the rule-set conventions.
type ValidationError struct {
	Tier      Tier
	Signature string
	Problem   string
}

func (e *ValidationError) Error() string {
	if e.Signature == "" {
		return fmt.Sprintf("invalid %s rules: %s", e.Tier, e.Problem)
	}
	return fmt.Sprintf("invalid %s signature %q: %s", e.Tier, e.Signature, e.Problem)
}

// Validate checks every signature of the set. It returns the first violation as a
// *ValidationError, or nil when the set is usable.
func (s Set) Validate() error {
	for _, t := range Tiers {
		if s.Scores.For(t) == 0 {
			return &ValidationError{Tier: t, Problem: "score must be positive"}
		}
		for _, sig := range s.Signatures(t) {
			if problem := checkSignature(t, sig); problem != "" {
				return &ValidationError{Tier: t, Signature: sig, Problem: problem}
			}
		}
	}
	return nil
}

func checkSignature(t Tier, sig string) string {
	if sig == "" {
		return "must not be empty"
	}
	if strings.IndexFunc(sig, unicode.IsUpper) >= 0 {
		return "must be lowercase"
	}
	switch t {
	case TierFullPath:
		if !strings.HasPrefix(sig, "/") {
			return "must start with '/'"
		}
	case TierPartialURL:
		if strings.Contains(sig, " ") {
			return "must be url encoded"
		}
	case TierBadSuffix:
		if !strings.HasPrefix(sig, ".") {
			return "must start with '.'"
		}
	}
	return ""
}

func clone(s []string) []string {
	out := make([]string, len(s))
	copy(out, s)
	return out
}
