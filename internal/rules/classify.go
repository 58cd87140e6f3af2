package rules

import (
	"fmt"
	"strings"
)

// Match describes the rule that fired for a request.
type Match struct {
	Tier      Tier
	Signature string
	Score     uint16
	Reason    string
}

// Classifier evaluates requests against a validated rule set.
// It is immutable and safe for concurrent use.
type Classifier struct {
	set       Set
	fullPaths map[string]struct{}
}

// Compile validates the set and builds a Classifier from a private copy of it.
func Compile(s Set) (*Classifier, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}

	c := &Classifier{
		set: Set{
			FullPaths:       clone(s.FullPaths),
			PartialURLs:     clone(s.PartialURLs),
			BadSuffixes:     clone(s.BadSuffixes),
			BadPartialPaths: clone(s.BadPartialPaths),
			Scores:          s.Scores,
		},
		fullPaths: make(map[string]struct{}, len(s.FullPaths)),
	}
	for _, p := range s.FullPaths {
		c.fullPaths[p] = struct{}{}
	}
	return c, nil
}

// Set returns a copy of the compiled rule set.
func (c *Classifier) Set() Set {
	return Set{
		FullPaths:       clone(c.set.FullPaths),
		PartialURLs:     clone(c.set.PartialURLs),
		BadSuffixes:     clone(c.set.BadSuffixes),
		BadPartialPaths: clone(c.set.BadPartialPaths),
		Scores:          c.set.Scores,
	}
}

// Classify returns the first matching rule for a request path and its raw URL
// (path plus query string). Tiers are tried in order and the first match wins,
// so at most one rule fires per request.
func (c *Classifier) Classify(path, rawURL string) (Match, bool) {
	lowerPath := strings.ToLower(path)
	lowerURL := strings.ToLower(rawURL)

	if _, ok := c.fullPaths[lowerPath]; ok {
		return Match{
			Tier:      TierFullPath,
			Signature: lowerPath,
			Score:     c.set.Scores.FullPath,
			Reason:    fmt.Sprintf("Forbidden path: %s", lowerPath),
		}, true
	}

	if sig, ok := firstContained(lowerURL, c.set.PartialURLs); ok {
		return Match{
			Tier:      TierPartialURL,
			Signature: sig,
			Score:     c.set.Scores.PartialURL,
			Reason:    fmt.Sprintf("Forbidden partial path %q in %s", sig, lowerURL),
		}, true
	}

	for _, suffix := range c.set.BadSuffixes {
		if strings.HasSuffix(lowerPath, suffix) {
			return Match{
				Tier:      TierBadSuffix,
				Signature: suffix,
				Score:     c.set.Scores.BadSuffix,
				Reason:    fmt.Sprintf("Bad file ending %q: %s", suffix, lowerPath),
			}, true
		}
	}

	if sig, ok := firstContained(lowerURL, c.set.BadPartialPaths); ok {
		return Match{
			Tier:      TierBadPartialPath,
			Signature: sig,
			Score:     c.set.Scores.BadPartialPath,
			Reason:    fmt.Sprintf("Bad partial path %q in %s", sig, lowerURL),
		}, true
	}

	return Match{}, false
}

func firstContained(s string, sigs []string) (string, bool) {
	for _, sig := range sigs {
		if strings.Contains(s, sig) {
			return sig, true
		}
	}
	return "", false
}
