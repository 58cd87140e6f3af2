package rules

import (
	"errors"
	"strings"
	"testing"
)

func TestDefault_IsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("Default().Validate() = %v, want nil", err)
	}
}

func TestDefault_ReturnsCopies(t *testing.T) {
	a := Default()
	a.FullPaths[0] = "/changed"

	b := Default()
	if b.FullPaths[0] == "/changed" {
		t.Error("Default() should return independent slices")
	}
}

func TestDefaultScores(t *testing.T) {
	s := DefaultScores()
	if s.FullPath != 10 || s.PartialURL != 5 || s.BadSuffix != 1 || s.BadPartialPath != 1 {
		t.Errorf("DefaultScores() = %+v, want {10 5 1 1}", s)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(*Set)
		wantTier Tier
		wantErr  bool
	}{
		{
			name:   "defaults",
			mutate: func(*Set) {},
		},
		{
			name:     "uppercase full path",
			mutate:   func(s *Set) { s.FullPaths = append(s.FullPaths, "/Admin.php") },
			wantTier: TierFullPath,
			wantErr:  true,
		},
		{
			name:     "full path without leading slash",
			mutate:   func(s *Set) { s.FullPaths = append(s.FullPaths, "admin.php") },
			wantTier: TierFullPath,
			wantErr:  true,
		},
		{
			name:     "partial url with space",
			mutate:   func(s *Set) { s.PartialURLs = append(s.PartialURLs, "union select") },
			wantTier: TierPartialURL,
			wantErr:  true,
		},
		{
			name:     "uppercase partial url",
			mutate:   func(s *Set) { s.PartialURLs = append(s.PartialURLs, "UNION+") },
			wantTier: TierPartialURL,
			wantErr:  true,
		},
		{
			name:     "suffix without dot",
			mutate:   func(s *Set) { s.BadSuffixes = append(s.BadSuffixes, "php") },
			wantTier: TierBadSuffix,
			wantErr:  true,
		},
		{
			name:     "uppercase suffix",
			mutate:   func(s *Set) { s.BadSuffixes = append(s.BadSuffixes, ".PHP") },
			wantTier: TierBadSuffix,
			wantErr:  true,
		},
		{
			name:     "uppercase bad partial path",
			mutate:   func(s *Set) { s.BadPartialPaths = append(s.BadPartialPaths, "/Joomla/") },
			wantTier: TierBadPartialPath,
			wantErr:  true,
		},
		{
			name:     "empty signature",
			mutate:   func(s *Set) { s.BadPartialPaths = append(s.BadPartialPaths, "") },
			wantTier: TierBadPartialPath,
			wantErr:  true,
		},
		{
			name:     "zero tier score",
			mutate:   func(s *Set) { s.Scores.PartialURL = 0 },
			wantTier: TierPartialURL,
			wantErr:  true,
		},
		{
			name:   "bad partial paths are free-form",
			mutate: func(s *Set) { s.BadPartialPaths = append(s.BadPartialPaths, "joomla") },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := Default()
			tt.mutate(&s)

			err := s.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr {
				return
			}

			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("Validate() error type = %T, want *ValidationError", err)
			}
			if verr.Tier != tt.wantTier {
				t.Errorf("ValidationError.Tier = %v, want %v", verr.Tier, tt.wantTier)
			}
		})
	}
}

func TestValidationError_Message(t *testing.T) {
	err := &ValidationError{Tier: TierBadSuffix, Signature: "php", Problem: "must start with '.'"}
	msg := err.Error()
	if !strings.Contains(msg, "bad_suffix") || !strings.Contains(msg, `"php"`) {
		t.Errorf("Error() = %q, want tier and signature", msg)
	}
}

func TestTier_String(t *testing.T) {
	tests := []struct {
		tier Tier
		want string
	}{
		{TierFullPath, "full_path"},
		{TierPartialURL, "partial_url"},
		{TierBadSuffix, "bad_suffix"},
		{TierBadPartialPath, "bad_partial_path"},
		{Tier(9), "tier(9)"},
	}
	for _, tt := range tests {
		if got := tt.tier.String(); got != tt.want {
			t.Errorf("Tier(%d).String() = %q, want %q", int(tt.tier), got, tt.want)
		}
	}
}
