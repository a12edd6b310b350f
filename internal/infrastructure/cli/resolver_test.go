package cli

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/pflag"

	"github.com/doeshing/qw/internal/domain"
)

func parseFlags(t *testing.T, args ...string) (*pflag.FlagSet, flagValues) {
	t.Helper()
	var v flagValues
	flags := pflag.NewFlagSet("qw", pflag.ContinueOnError)
	bindFlags(flags, &v)
	if err := flags.Parse(args); err != nil {
		t.Fatalf("parse flags: %v", err)
	}
	return flags, v
}

func isUsageError(err error) bool {
	var usage *domain.UsageError
	return errors.As(err, &usage)
}

func TestParseTimeout(t *testing.T) {
	tests := []struct {
		in      string
		want    time.Duration
		wantErr bool
	}{
		{in: "", want: domain.DefaultTimeout},
		{in: "180", want: 180 * time.Second},
		{in: "1.5", want: 1500 * time.Millisecond},
		{in: "90s", want: 90 * time.Second},
		{in: "2m", want: 2 * time.Minute},
		{in: "0", wantErr: true},
		{in: "-1s", wantErr: true},
		{in: "later", wantErr: true},
	}
	for _, tt := range tests {
		got, err := parseTimeout(tt.in)
		if tt.wantErr {
			if !isUsageError(err) {
				t.Errorf("parseTimeout(%q): expected UsageError, got %v", tt.in, err)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Errorf("parseTimeout(%q) = %s, %v; want %s", tt.in, got, err, tt.want)
		}
	}
}

func TestReadPromptPrefersArgs(t *testing.T) {
	got, err := readPrompt([]string{"show", "disk", "usage"}, strings.NewReader("ignored"), false)
	if err != nil || got != "show disk usage" {
		t.Fatalf("readPrompt = %q, %v", got, err)
	}
}

func TestReadPromptTerminalWithoutArgs(t *testing.T) {
	_, err := readPrompt(nil, strings.NewReader("typed"), true)
	if !isUsageError(err) {
		t.Fatalf("expected UsageError for interactive stdin, got %v", err)
	}
	_, err = readPrompt(nil, strings.NewReader(" \n\t"), false)
	if !isUsageError(err) {
		t.Fatalf("expected UsageError for blank stdin, got %v", err)
	}
}

func TestResolveRequestUsesFileDefaults(t *testing.T) {
	temp, seed := 0.2, 42
	fileCfg := domain.FileConfig{
		Model:   "llama3.2:1b",
		Timeout: "30s",
		Output:  "quiet",
		Sampling: domain.SamplingSettings{
			Temperature: &temp,
			Seed:        &seed,
		},
	}
	flags, v := parseFlags(t)

	req, err := resolveRequest(flags, v, []string{"hi"}, nil, true, fileCfg)
	if err != nil {
		t.Fatalf("resolveRequest error: %v", err)
	}
	if req.Model != "llama3.2:1b" {
		t.Fatalf("expected model from file, got %q", req.Model)
	}
	if req.Timeout != 30*time.Second {
		t.Fatalf("expected 30s, got %s", req.Timeout)
	}
	if req.Output != domain.OutputQuiet {
		t.Fatalf("expected quiet from file, got %s", req.Output)
	}
	if req.Sampling.Temperature == nil || *req.Sampling.Temperature != 0.2 {
		t.Fatalf("expected temperature from file, got %v", req.Sampling.Temperature)
	}
}

func TestResolveRequestFlagsWinOverFile(t *testing.T) {
	temp := 0.2
	fileCfg := domain.FileConfig{
		Model:    "llama3.2:1b",
		Output:   "quiet",
		LogFile:  "/tmp/from-file.jsonl",
		Sampling: domain.SamplingSettings{Temperature: &temp},
	}
	flags, v := parseFlags(t, "-m", "qwen2.5:7b", "--json", "--temperature", "0", "--log-file", "/tmp/flag.jsonl", "--codex")

	req, err := resolveRequest(flags, v, []string{"hi"}, nil, true, fileCfg)
	if err != nil {
		t.Fatalf("resolveRequest error: %v", err)
	}
	if req.Model != "qwen2.5:7b" {
		t.Fatalf("expected flag model, got %q", req.Model)
	}
	if req.Output != domain.OutputJSON {
		t.Fatalf("expected json, got %s", req.Output)
	}
	if req.Sampling.Temperature == nil || *req.Sampling.Temperature != 0 {
		t.Fatalf("an explicit zero temperature must be sent, got %v", req.Sampling.Temperature)
	}
	if req.LogFile != "/tmp/flag.jsonl" {
		t.Fatalf("expected flag log file, got %q", req.LogFile)
	}
	if got := req.EnabledStages(); len(got) != 1 || got[0] != domain.StageCodex {
		t.Fatalf("expected codex only, got %v", got)
	}
}

func TestResolveRequestReadsSystemFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "system.txt")
	if err := os.WriteFile(path, []byte("Reply with one shell command.\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	flags, v := parseFlags(t, "--system-file", path)
	req, err := resolveRequest(flags, v, []string{"hi"}, nil, true, domain.FileConfig{})
	if err != nil {
		t.Fatalf("resolveRequest error: %v", err)
	}
	if req.SystemPrompt != "Reply with one shell command." {
		t.Fatalf("unexpected system prompt %q", req.SystemPrompt)
	}

	flags, v = parseFlags(t, "--system-file", filepath.Join(t.TempDir(), "missing.txt"))
	if _, err := resolveRequest(flags, v, []string{"hi"}, nil, true, domain.FileConfig{}); !isUsageError(err) {
		t.Fatalf("expected UsageError for missing system file, got %v", err)
	}
}

func TestResolveOutputExclusive(t *testing.T) {
	for _, args := range [][]string{
		{"--json", "--quiet"},
		{"-o", "plain", "--json"},
		{"-q", "--output", "quiet"},
	} {
		flags, v := parseFlags(t, args...)
		if _, err := resolveOutput(flags, v, ""); !isUsageError(err) {
			t.Errorf("%v: expected UsageError, got %v", args, err)
		}
	}
}
