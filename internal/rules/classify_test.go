package rules

import (
	"strings"
	"testing"
)

func mustCompile(t *testing.T, s Set) *Classifier {
	t.Helper()
	c, err := Compile(s)
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	return c
}

func TestClassify(t *testing.T) {
	c := mustCompile(t, Default())

	tests := []struct {
		name      string
		path      string
		rawURL    string
		wantMatch bool
		wantTier  Tier
		wantSig   string
		wantScore uint16
	}{
		{
			name:      "forbidden full path",
			path:      "/wp-login.php",
			rawURL:    "/wp-login.php",
			wantMatch: true,
			wantTier:  TierFullPath,
			wantSig:   "/wp-login.php",
			wantScore: 10,
		},
		{
			name:      "full path is case insensitive",
			path:      "/.ENV",
			rawURL:    "/.ENV",
			wantMatch: true,
			wantTier:  TierFullPath,
			wantSig:   "/.env",
			wantScore: 10,
		},
		{
			name:      "full path wins over partial url",
			path:      "/.env",
			rawURL:    "/.env?x=../etc/passwd",
			wantMatch: true,
			wantTier:  TierFullPath,
			wantScore: 10,
		},
		{
			name:      "partial url in query string",
			path:      "/index",
			rawURL:    "/index?abc=select(1)",
			wantMatch: true,
			wantTier:  TierPartialURL,
			wantSig:   "select(",
			wantScore: 5,
		},
		{
			name:      "partial url wins over suffix",
			path:      "/download.php",
			rawURL:    "/download.php?file=..%2f..%2fetc",
			wantMatch: true,
			wantTier:  TierPartialURL,
			wantSig:   "..%2f",
			wantScore: 5,
		},
		{
			name:      "encoded quote injection",
			path:      "/search",
			rawURL:    "/search?q=%22OR%22",
			wantMatch: true,
			wantTier:  TierPartialURL,
			wantSig:   "%22or%22",
			wantScore: 5,
		},
		{
			name:      "bad suffix",
			path:      "/my-file.sql",
			rawURL:    "/my-file.sql",
			wantMatch: true,
			wantTier:  TierBadSuffix,
			wantSig:   ".sql",
			wantScore: 1,
		},
		{
			name:      "suffix wins over bad partial path",
			path:      "/wp-admin/setup.php",
			rawURL:    "/wp-admin/setup.php",
			wantMatch: true,
			wantTier:  TierBadSuffix,
			wantSig:   ".php",
			wantScore: 1,
		},
		{
			name:      "bad partial path",
			path:      "/blog/wordpress/",
			rawURL:    "/blog/wordpress/",
			wantMatch: true,
			wantTier:  TierBadPartialPath,
			wantSig:   "/wordpress/",
			wantScore: 1,
		},
		{
			name:   "clean path",
			path:   "/api/users",
			rawURL: "/api/users?page=2",
		},
		{
			name:   "suffix is only checked against the path",
			path:   "/download",
			rawURL: "/download?name=report.php",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, ok := c.Classify(tt.path, tt.rawURL)
			if ok != tt.wantMatch {
				t.Fatalf("Classify(%q, %q) matched = %v, want %v (%+v)", tt.path, tt.rawURL, ok, tt.wantMatch, m)
			}
			if !ok {
				return
			}
			if m.Tier != tt.wantTier {
				t.Errorf("Tier = %v, want %v", m.Tier, tt.wantTier)
			}
			if tt.wantSig != "" && m.Signature != tt.wantSig {
				t.Errorf("Signature = %q, want %q", m.Signature, tt.wantSig)
			}
			if m.Score != tt.wantScore {
				t.Errorf("Score = %d, want %d", m.Score, tt.wantScore)
			}
			if m.Reason == "" {
				t.Error("Reason should not be empty")
			}
		})
	}
}

func TestClassify_Reasons(t *testing.T) {
	c := mustCompile(t, Default())

	m, _ := c.Classify("/WP-Login.php", "/WP-Login.php")
	if m.Reason != "Forbidden path: /wp-login.php" {
		t.Errorf("full path reason = %q", m.Reason)
	}

	m, _ = c.Classify("/index", "/index?abc=CONCAT(")
	if !strings.Contains(m.Reason, `"concat("`) || !strings.Contains(m.Reason, "/index?abc=concat(") {
		t.Errorf("partial url reason = %q, want signature and url", m.Reason)
	}

	m, _ = c.Classify("/dump.bak", "/dump.bak")
	if !strings.Contains(m.Reason, `".bak"`) || !strings.Contains(m.Reason, "/dump.bak") {
		t.Errorf("suffix reason = %q, want suffix and path", m.Reason)
	}

	m, _ = c.Classify("/shop/magento/", "/shop/magento/")
	if !strings.Contains(m.Reason, `"/magento/"`) {
		t.Errorf("bad partial reason = %q, want signature", m.Reason)
	}
}

func TestClassify_DeclaredOrder(t *testing.T) {
	s := Default()
	s.PartialURLs = []string{"bbb", "aaa"}
	c := mustCompile(t, s)

	m, ok := c.Classify("/x", "/x?q=aaabbb")
	if !ok {
		t.Fatal("expected a match")
	}
	if m.Signature != "bbb" {
		t.Errorf("Signature = %q, want first declared signature %q", m.Signature, "bbb")
	}
}

func TestClassify_CustomScores(t *testing.T) {
	s := Default()
	s.Scores.BadSuffix = 10
	c := mustCompile(t, s)

	m, ok := c.Classify("/my-file.exe", "/my-file.exe")
	if !ok || m.Score != 10 {
		t.Errorf("Classify() = %+v, %v; want score 10", m, ok)
	}
}

func TestCompile_RejectsInvalidSet(t *testing.T) {
	s := Default()
	s.FullPaths = []string{"/Wp-Login.php"}
	if _, err := Compile(s); err == nil {
		t.Error("Compile() should reject uppercase signatures")
	}
}

func TestCompile_CopiesSet(t *testing.T) {
	s := Default()
	c := mustCompile(t, s)

	s.BadSuffixes[0] = ".changed"
	got := c.Set()
	if got.BadSuffixes[0] == ".changed" {
		t.Error("Classifier should not share slices with the source Set")
	}
}
