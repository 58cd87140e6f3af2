package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// execute runs the root command with args and returns its stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()

	configPath, debug, logLevel, logFile, logComponents = "", false, "", "", ""
	rulesTier = ""
	configOutputPath, configForce = "", false
	serveListen, serveUpstream, serveAccessLog, serveReload = "", "", "", true
	cfg, cfgSource = nil, ""

	// keep the default config path away from the real home directory
	t.Setenv("SCANBLOCK_CONFIG", filepath.Join(t.TempDir(), "missing.yaml"))

	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	})

	err := rootCmd.Execute()
	return out.String(), err
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "version")
	if err != nil {
		t.Fatalf("version failed: %v", err)
	}
	if !strings.HasPrefix(out, "scanblock dev") {
		t.Errorf("output = %q", out)
	}
}

func TestRulesList(t *testing.T) {
	out, err := execute(t, "rules", "list")
	if err != nil {
		t.Fatalf("rules list failed: %v", err)
	}
	for _, want := range []string{"full_path (score 10", "partial_url (score 5", "bad_suffix (score 1", "bad_partial_path (score 1", "  /wp-login.php"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestRulesList_Tier(t *testing.T) {
	out, err := execute(t, "rules", "list", "--tier", "bad_suffix")
	if err != nil {
		t.Fatalf("rules list failed: %v", err)
	}
	if strings.Contains(out, "full_path") || !strings.Contains(out, "bad_suffix") {
		t.Errorf("output should only hold bad_suffix:\n%s", out)
	}

	if _, err := execute(t, "rules", "list", "--tier", "nope"); err == nil {
		t.Error("unknown tier should fail")
	}
}

func TestRulesCheck(t *testing.T) {
	out, err := execute(t, "rules", "check", "/wp-login.php", "/search?q=1+or+1", "/about")
	if err != nil {
		t.Fatalf("rules check failed: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 3 {
		t.Fatalf("got %d lines, want 3:\n%s", len(lines), out)
	}

	tests := []struct {
		line int
		want []string
	}{
		{0, []string{"/wp-login.php", "full_path", "10", "Forbidden path: /wp-login.php"}},
		{1, []string{"partial_url", "5", `"+or+"`}},
		{2, []string{"/about", "no match"}},
	}
	for _, tt := range tests {
		for _, want := range tt.want {
			if !strings.Contains(lines[tt.line], want) {
				t.Errorf("line %d missing %q: %s", tt.line, want, lines[tt.line])
			}
		}
	}
}

func TestRulesCheck_ConfiguredRules(t *testing.T) {
	path := writeConfig(t, `
listing:
  allow: "false"
skip_scoring: "false"
scores:
  full_path: 15
rules:
  full_paths: ["/secret.txt"]
`)
	out, err := execute(t, "--config", path, "rules", "check", "/secret.txt")
	if err != nil {
		t.Fatalf("rules check failed: %v", err)
	}
	if !strings.Contains(out, "full_path") || !strings.Contains(out, "15") {
		t.Errorf("output = %q", out)
	}
}

func TestConfigValidate(t *testing.T) {
	path := writeConfig(t, `
listing:
  allow: 'headers["x-admin-token"] == "secret"'
  format: json
skip_scoring: 'path.startsWith("/healthz")'
block_threshold: 30
`)
	out, err := execute(t, "--config", path, "config", "validate")
	if err != nil {
		t.Fatalf("config validate failed: %v", err)
	}
	for _, want := range []string{"Configuration OK", path, "block threshold: 30", "(json)"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestConfigValidate_Defaults(t *testing.T) {
	out, err := execute(t, "config", "validate")
	if err != nil {
		t.Fatalf("config validate failed: %v", err)
	}
	if !strings.Contains(out, "built-in defaults") {
		t.Errorf("output = %q", out)
	}
}

func TestConfigValidate_Invalid(t *testing.T) {
	path := writeConfig(t, `
listing:
  allow: "path +"
skip_scoring: "false"
`)
	if _, err := execute(t, "--config", path, "config", "validate"); err == nil {
		t.Error("invalid expression should fail")
	}
}

func TestConfig_MissingExplicitFile(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "nope.yaml")
	if _, err := execute(t, "--config", missing, "config", "validate"); err == nil {
		t.Error("missing --config file should fail")
	}
}

func TestConfigPath(t *testing.T) {
	out, err := execute(t, "--config", "/etc/scanblock.yaml", "config", "path")
	if err == nil {
		// PersistentPreRunE loads the file, which does not exist
		t.Fatalf("config path with a missing explicit file should fail, got %q", out)
	}

	out, err = execute(t, "config", "path")
	if err != nil {
		t.Fatalf("config path failed: %v", err)
	}
	if !strings.HasSuffix(strings.TrimSpace(out), "missing.yaml") {
		t.Errorf("output = %q, want the SCANBLOCK_CONFIG path", out)
	}
}

func TestInvalidLogLevel(t *testing.T) {
	if _, err := execute(t, "--log-level", "loud", "rules", "list"); err == nil {
		t.Error("invalid log level should fail")
	}
}

func TestServe_InvalidUpstream(t *testing.T) {
	if _, err := execute(t, "serve", "--upstream", "not a url"); err == nil {
		t.Error("serve with an invalid upstream should fail")
	}
}

func TestConfigCreate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "scanblock.yaml")

	out, err := execute(t, "config", "create", "--output", path)
	if err != nil {
		t.Fatalf("config create failed: %v", err)
	}
	if !strings.Contains(out, path) {
		t.Errorf("output = %q", out)
	}

	if _, err := execute(t, "config", "create", "--output", path); err == nil {
		t.Error("config create over an existing file should fail without --force")
	}
	if _, err := execute(t, "config", "create", "--output", path, "--force"); err != nil {
		t.Errorf("config create --force failed: %v", err)
	}

	// the created file is a valid configuration
	out, err = execute(t, "--config", path, "config", "validate")
	if err != nil {
		t.Fatalf("validating the created file failed: %v", err)
	}
	if !strings.Contains(out, "Configuration OK") {
		t.Errorf("output = %q", out)
	}
}

func TestConfigCreate_ExplicitConfigPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "new.yaml")
	if _, err := execute(t, "--config", path, "config", "create"); err != nil {
		t.Fatalf("config create failed: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("file not created at the --config path: %v", err)
	}
}
