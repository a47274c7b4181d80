package cmd

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/masahif/seeker/internal/crawler"
)

func TestSetVersionInfo(t *testing.T) {
	SetVersionInfo("1.2.3", "2023-12-01T10:00:00Z")

	expected := "1.2.3 (built 2023-12-01T10:00:00Z)"
	if rootCmd.Version != expected {
		t.Errorf("Expected version %s, got %s", expected, rootCmd.Version)
	}
	if got := generateUserAgent(); got != "Seeker/1.2.3" {
		t.Errorf("Expected user agent Seeker/1.2.3, got %s", got)
	}

	SetVersionInfo("dev", "unknown")
	if got := generateUserAgent(); got != "Seeker/1.0" {
		t.Errorf("Expected default user agent for dev build, got %s", got)
	}
}

func TestRootCmd(t *testing.T) {
	cmd := newRootCmd()

	if cmd.Use != "seeker [URLs...]" {
		t.Errorf("Expected use 'seeker [URLs...]', got %s", cmd.Use)
	}
	if cmd.RunE == nil {
		t.Error("RunE should be set")
	}

	found := false
	for _, sub := range cmd.Commands() {
		if sub.Name() == "show" {
			found = true
		}
	}
	if !found {
		t.Error("Expected show subcommand")
	}
}

func TestFlagBinding(t *testing.T) {
	cmd := newRootCmd()

	local := []string{
		"show-config", "scope", "cycles", "concurrency", "timeout",
		"user-agent", "max-per-domain", "extensions", "exclude-patterns",
	}
	for _, name := range local {
		if cmd.Flags().Lookup(name) == nil {
			t.Errorf("Expected flag %s to be defined", name)
		}
	}

	persistent := []string{"config", "database", "output", "format", "log-level", "log-file", "log-format"}
	for _, name := range persistent {
		if cmd.PersistentFlags().Lookup(name) == nil {
			t.Errorf("Expected persistent flag %s to be defined", name)
		}
	}

	shorthands := map[string]string{"n": "cycles", "c": "concurrency", "t": "timeout", "u": "user-agent"}
	for short, name := range shorthands {
		if f := cmd.Flags().ShorthandLookup(short); f == nil || f.Name != name {
			t.Errorf("Expected -%s to be --%s", short, name)
		}
	}
}

// execute runs a fresh root command and returns its stdout
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), err
}

func TestShowConfigFromFile(t *testing.T) {
	configFile := filepath.Join(t.TempDir(), "seeker.yml")
	content := `
scope: Site.EDU
cycles: 7
max_per_domain: 50
exclude_patterns:
  - /private/
log:
  level: debug
`
	if err := os.WriteFile(configFile, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to create test config file: %v", err)
	}

	out, err := execute(t, "--config", configFile, "--show-config")
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	for _, want := range []string{"scope: site.edu", "cycles: 7", "max_per_domain: 50", "- /private/", "level: debug"} {
		if !strings.Contains(out, want) {
			t.Errorf("show-config output missing %q:\n%s", want, out)
		}
	}
}

func TestConfigPrecedence(t *testing.T) {
	configFile := filepath.Join(t.TempDir(), "seeker.yml")
	if err := os.WriteFile(configFile, []byte("cycles: 7\nconcurrency: 2\n"), 0644); err != nil {
		t.Fatalf("Failed to create test config file: %v", err)
	}
	t.Setenv("SK_CYCLES", "9")
	t.Setenv("SK_CONCURRENCY", "3")

	out, err := execute(t, "--config", configFile, "--show-config", "--concurrency", "4")
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	// env beats file, flag beats env
	if !strings.Contains(out, "cycles: 9") {
		t.Errorf("expected cycles from environment:\n%s", out)
	}
	if !strings.Contains(out, "concurrency: 4") {
		t.Errorf("expected concurrency from flag:\n%s", out)
	}
}

func TestConfigEnvironmentOnlyKeys(t *testing.T) {
	// These keys have no flag, so only registered defaults let the environment reach them
	t.Setenv("SK_SEED_URLS", "http://x.site.edu/")
	t.Setenv("SK_LOG_MAX_SIZE_MB", "7")
	t.Setenv("SK_LOG_MAX_BACKUPS", "2")

	out, err := execute(t, "--show-config")
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	for _, want := range []string{"http://x.site.edu/", "max_size_mb: 7", "max_backups: 2"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in output:\n%s", want, out)
		}
	}
}

func TestConfigErrors(t *testing.T) {
	if _, err := execute(t, "--config", filepath.Join(t.TempDir(), "missing.yml"), "--show-config"); err == nil {
		t.Error("expected error for missing explicit config file")
	}

	_, err := execute(t, "--cycles", "0", "http://www.site.edu/")
	if err == nil || !strings.Contains(err.Error(), "invalid configuration") {
		t.Errorf("expected invalid configuration error, got %v", err)
	}

	_, err = execute(t, "--scope", "site.edu", "--exclude-patterns", "(", "http://www.site.edu/")
	if err == nil || !strings.Contains(err.Error(), "invalid filter configuration") {
		t.Errorf("expected invalid filter error, got %v", err)
	}

	_, err = execute(t, "not a url")
	if err == nil || !strings.Contains(err.Error(), "invalid seed URL") {
		t.Errorf("expected invalid seed error, got %v", err)
	}
}

// siteServer serves a small site.edu and routes every dial to itself
func siteServer(t *testing.T) {
	t.Helper()

	pages := map[string]string{
		"www.site.edu": `<a href="http://a.site.edu/">a</a> <a href="/about">about</a>
			<a href="http://b.site.edu/x.html">b</a> <a href="http://other.org/">other</a>`,
		"a.site.edu": `<a href="http://www.site.edu/">home</a> <a href="/doc.pdf">doc</a>`,
		"b.site.edu": `<title>B</title>`,
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, ok := pages[r.Host]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprintf(w, "<html><body>%s</body></html>", body)
	}))
	t.Cleanup(server.Close)

	addr := server.Listener.Addr().String()
	transport := &http.Transport{
		DialContext: func(ctx context.Context, network, _ string) (net.Conn, error) {
			return (&net.Dialer{}).DialContext(ctx, network, addr)
		},
	}
	fetcherOptions = []crawler.FetcherOption{crawler.WithTransport(transport)}
	t.Cleanup(func() { fetcherOptions = nil })
}

func TestRunSeekerEndToEnd(t *testing.T) {
	siteServer(t)
	dbPath := filepath.Join(t.TempDir(), "runs", "seeker.db")

	out, err := execute(t,
		"http://www.site.edu/",
		"--scope", "site.edu",
		"--cycles", "20",
		"--database", dbPath,
		"--log-level", "error",
	)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	want := "a.site.edu\nb.site.edu\nwww.site.edu\n"
	if out != want {
		t.Errorf("report = %q, want %q", out, want)
	}

	// The stored run reads back identically
	shown, err := execute(t, "show", "--database", dbPath, "--log-level", "error")
	if err != nil {
		t.Fatalf("show error = %v", err)
	}
	if shown != want {
		t.Errorf("show = %q, want %q", shown, want)
	}

	shown, err = execute(t, "show", "1", "--database", dbPath, "--format", "yaml")
	if err != nil {
		t.Fatalf("show yaml error = %v", err)
	}
	for _, s := range []string{"registrable: site.edu", "scope: site.edu", "found: 3"} {
		if !strings.Contains(shown, s) {
			t.Errorf("yaml report missing %q:\n%s", s, shown)
		}
	}

	list, err := execute(t, "show", "--list", "--database", dbPath)
	if err != nil {
		t.Fatalf("show --list error = %v", err)
	}
	if !strings.HasPrefix(list, "1\t") || !strings.Contains(list, "found=3") {
		t.Errorf("unexpected run list: %q", list)
	}
}

func TestRunSeekerOutputFile(t *testing.T) {
	siteServer(t)
	output := filepath.Join(t.TempDir(), "out", "domains.yaml")

	out, err := execute(t,
		"http://www.site.edu/",
		"--scope", "site.edu",
		"--output", output,
		"--format", "yaml",
		"--log-level", "error",
	)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if out != "" {
		t.Errorf("stdout should be empty when --output is set, got %q", out)
	}

	data, err := os.ReadFile(output)
	if err != nil {
		t.Fatalf("Failed to read report: %v", err)
	}
	if !strings.Contains(string(data), "- www.site.edu") {
		t.Errorf("unexpected report:\n%s", data)
	}
}

func TestShowErrors(t *testing.T) {
	if _, err := execute(t, "show"); err == nil {
		t.Error("expected error without --database")
	}

	dbPath := filepath.Join(t.TempDir(), "empty.db")
	if _, err := execute(t, "show", "--database", dbPath); err == nil {
		t.Error("expected error for database without runs")
	}
	if _, err := execute(t, "show", "abc", "--database", dbPath); err == nil {
		t.Error("expected error for non-numeric run id")
	}

	list, err := execute(t, "show", "--list", "--database", dbPath)
	if err != nil {
		t.Fatalf("show --list error = %v", err)
	}
	if !strings.Contains(list, "No stored runs") {
		t.Errorf("unexpected list output: %q", list)
	}
}
