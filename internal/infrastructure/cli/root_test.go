package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/doeshing/qw/internal/app"
	"github.com/doeshing/qw/internal/application/pipeline"
	"github.com/doeshing/qw/internal/domain"
	"github.com/doeshing/qw/internal/infrastructure/executor"
	"github.com/doeshing/qw/internal/infrastructure/history"
	"github.com/doeshing/qw/internal/infrastructure/process"
	"github.com/doeshing/qw/internal/infrastructure/security"
	"github.com/doeshing/qw/internal/pkg/logger"
	"github.com/doeshing/qw/internal/ports"
)

type stubInference struct {
	mu      sync.Mutex
	reply   string
	err     error
	notice  string
	notices io.Writer
	seen    []ports.InferenceRequest
}

func (s *stubInference) Generate(_ context.Context, req ports.InferenceRequest) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seen = append(s.seen, req)
	if s.notice != "" && s.notices != nil {
		fmt.Fprint(s.notices, s.notice)
	}
	return s.reply, s.err
}

func (s *stubInference) requests() []ports.InferenceRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]ports.InferenceRequest(nil), s.seen...)
}

type harness struct {
	inference *stubInference
	stages    map[domain.StageName][]string
	stdin     string
	stdout    bytes.Buffer
	stderr    lockedBuffer
	terminal  bool
	built     domain.RequestConfig
}

func newHarness(reply string) *harness {
	return &harness{
		inference: &stubInference{reply: reply},
		stages: map[domain.StageName][]string{
			domain.StageCodex:  {"cat"},
			domain.StageClaude: {"cat"},
		},
	}
}

func (h *harness) build(req domain.RequestConfig, fileCfg domain.FileConfig, streams app.Streams) (*app.Container, error) {
	h.built = req
	h.inference.notices = streams.Err
	log := logger.New(streams.Err, false)
	svc := &pipeline.Service{
		Inference: h.inference,
		Stages:    process.NewRunner(h.stages, req.Timeout, log),
		Logger:    log,
	}
	if req.LogFile != "" {
		svc.RunLog = history.Open(req.LogFile)
	}
	if req.Execute {
		guardrail, err := security.NewGuardrail("")
		if err != nil {
			return nil, err
		}
		svc.Security = guardrail
		svc.Executor = executor.NewLocalExecutor("/bin/sh", streams.Out, streams.Err)
	}
	return &app.Container{Pipeline: svc, Logger: log}, nil
}

func (h *harness) run(t *testing.T, args ...string) int {
	t.Helper()
	opts := Options{
		Stdin:            strings.NewReader(h.stdin),
		Stdout:           &h.stdout,
		Stderr:           &h.stderr,
		StdinIsTerminal:  h.stdin == "",
		StderrIsTerminal: h.terminal,
		BuildContainer:   h.build,
	}
	args = append([]string{"--config", filepath.Join(t.TempDir(), "absent.yaml")}, args...)
	return Execute(context.Background(), opts, args)
}

func TestRootPrintsBaseReply(t *testing.T) {
	h := newHarness("Hello")
	if code := h.run(t, "hi"); code != domain.ExitOK {
		t.Fatalf("expected exit 0, got %d (stderr %q)", code, h.stderr.String())
	}
	if got := h.stdout.String(); got != "Hello\n" {
		t.Fatalf("expected Hello, got %q", got)
	}
	if got := h.inference.requests()[0]; got.Prompt != "hi" || got.Model != domain.DefaultModel {
		t.Fatalf("unexpected request %+v", got)
	}
}

func TestRootJoinsWordsAndReadsStdin(t *testing.T) {
	h := newHarness("ok")
	h.run(t, "list", "  files ")
	if got := h.inference.requests()[0].Prompt; got != "list   files" {
		t.Fatalf("expected joined prompt, got %q", got)
	}

	piped := newHarness("ok")
	piped.stdin = "  from a pipe\n"
	if code := piped.run(t); code != domain.ExitOK {
		t.Fatalf("expected exit 0, got %d (stderr %q)", code, piped.stderr.String())
	}
	if got := piped.inference.requests()[0].Prompt; got != "from a pipe" {
		t.Fatalf("expected stdin prompt, got %q", got)
	}
}

func TestRootClaudeStageAppendsSection(t *testing.T) {
	h := newHarness("Hello")
	if code := h.run(t, "--claude", "hi"); code != domain.ExitOK {
		t.Fatalf("expected exit 0, got %d (stderr %q)", code, h.stderr.String())
	}
	want := "Hello\n--- claude ---\nHello\n"
	if got := h.stdout.String(); got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}

func TestRootJSONKeysMatchProducedStages(t *testing.T) {
	h := newHarness("Hello")
	if code := h.run(t, "--json", "--codex", "--claude", "hi"); code != domain.ExitOK {
		t.Fatalf("expected exit 0, got %d (stderr %q)", code, h.stderr.String())
	}
	var decoded map[string]string
	if err := json.Unmarshal(h.stdout.Bytes(), &decoded); err != nil {
		t.Fatalf("stdout is not JSON: %v (%q)", err, h.stdout.String())
	}
	want := map[string]string{"qwen": "Hello", "codex": "Hello", "claude": "Hello"}
	if diff := cmp.Diff(want, decoded); diff != "" {
		t.Fatalf("json mismatch (-want +got):\n%s", diff)
	}
}

func TestRootQuietPrintsLastStage(t *testing.T) {
	h := newHarness("hello")
	h.stages[domain.StageCodex] = []string{"sh", "-c", "tr a-z A-Z"}
	if code := h.run(t, "-q", "--codex", "hi"); code != domain.ExitOK {
		t.Fatalf("expected exit 0, got %d (stderr %q)", code, h.stderr.String())
	}
	if got := h.stdout.String(); got != "HELLO\n" {
		t.Fatalf("expected HELLO, got %q", got)
	}
}

func TestRootMissingStageStillReportsOthers(t *testing.T) {
	h := newHarness("Hello")
	h.stages[domain.StageCodex] = []string{"qw-definitely-not-installed"}
	code := h.run(t, "--json", "--codex", "--claude", "hi")
	if code != domain.ExitOK {
		t.Fatalf("stage failures are not fatal, got exit %d", code)
	}
	var decoded map[string]string
	if err := json.Unmarshal(h.stdout.Bytes(), &decoded); err != nil {
		t.Fatalf("stdout is not JSON: %v", err)
	}
	if _, ok := decoded["codex"]; ok {
		t.Fatalf("failed stage must not appear in output: %v", decoded)
	}
	if decoded["qwen"] != "Hello" || decoded["claude"] != "Hello" {
		t.Fatalf("expected qwen and claude replies, got %v", decoded)
	}
	if !strings.Contains(h.stderr.String(), "qw: codex failed") {
		t.Fatalf("expected codex failure on stderr, got %q", h.stderr.String())
	}
}

func TestRootUsageErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{name: "no prompt", args: nil},
		{name: "blank prompt", args: []string{"   "}},
		{name: "unknown flag", args: []string{"--nope", "hi"}},
		{name: "conflicting output", args: []string{"--json", "-q", "hi"}},
		{name: "bad output mode", args: []string{"-o", "yaml", "hi"}},
		{name: "bad timeout", args: []string{"--timeout", "soon", "hi"}},
		{name: "negative timeout", args: []string{"--timeout", "-5", "hi"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness("Hello")
			if code := h.run(t, tt.args...); code != domain.ExitUsage {
				t.Fatalf("expected exit %d, got %d (stderr %q)", domain.ExitUsage, code, h.stderr.String())
			}
			if h.stdout.Len() != 0 {
				t.Fatalf("usage errors must not write stdout, got %q", h.stdout.String())
			}
			if len(h.inference.requests()) != 0 {
				t.Fatal("inference must not run on usage errors")
			}
			if strings.Contains(h.stderr.String(), "qw: exit status") {
				t.Fatalf("usage errors must not look like an executed status: %q", h.stderr.String())
			}
		})
	}
}

func TestRootInferenceFailureIsFatal(t *testing.T) {
	h := newHarness("")
	h.inference.err = errors.New("connection refused")
	code := h.run(t, "--claude", "hi")
	if code != domain.ExitInferenceUnavailable {
		t.Fatalf("expected exit %d, got %d", domain.ExitInferenceUnavailable, code)
	}
	if h.stdout.Len() != 0 {
		t.Fatalf("expected no output, got %q", h.stdout.String())
	}
	if !strings.Contains(h.stderr.String(), "connection refused") {
		t.Fatalf("expected cause on stderr, got %q", h.stderr.String())
	}
	if strings.Contains(h.stderr.String(), "qw: exit status") {
		t.Fatalf("inference failures must not look like an executed status: %q", h.stderr.String())
	}
}

func TestRootForwardsSamplingAndTimeout(t *testing.T) {
	h := newHarness("ok")
	code := h.run(t, "--temperature", "0.3", "--seed", "7", "--stop", "\n\n", "--stop", "END", "--timeout", "90", "hi")
	if code != domain.ExitOK {
		t.Fatalf("expected exit 0, got %d (stderr %q)", code, h.stderr.String())
	}
	got := h.inference.requests()[0].Sampling
	if got.Temperature == nil || *got.Temperature != 0.3 {
		t.Fatalf("expected temperature 0.3, got %v", got.Temperature)
	}
	if got.Seed == nil || *got.Seed != 7 {
		t.Fatalf("expected seed 7, got %v", got.Seed)
	}
	if got.TopP != nil || got.MaxTokens != nil {
		t.Fatalf("unset sampling values must stay nil: %+v", got)
	}
	if diff := cmp.Diff([]string{"\n\n", "END"}, got.Stop); diff != "" {
		t.Fatalf("stop mismatch (-want +got):\n%s", diff)
	}
	if h.built.Timeout.Seconds() != 90 {
		t.Fatalf("expected 90s timeout, got %s", h.built.Timeout)
	}
}

func TestRootWritesLogFile(t *testing.T) {
	h := newHarness("Hello")
	path := filepath.Join(t.TempDir(), "runs.jsonl")
	if code := h.run(t, "--claude", "--log-file", path, "hi"); code != domain.ExitOK {
		t.Fatalf("expected exit 0, got %d (stderr %q)", code, h.stderr.String())
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	lines := strings.Split(strings.TrimSuffix(string(raw), "\n"), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected one record, got %d", len(lines))
	}
	var record domain.LogRecord
	if err := json.Unmarshal([]byte(lines[0]), &record); err != nil {
		t.Fatalf("decode record: %v", err)
	}
	want := map[domain.StageName]string{domain.StageQwen: "Hello", domain.StageClaude: "Hello"}
	if diff := cmp.Diff(want, record.Stages); diff != "" {
		t.Fatalf("stages mismatch (-want +got):\n%s", diff)
	}
	if record.Prompt != "hi" {
		t.Fatalf("expected prompt hi, got %q", record.Prompt)
	}
}

func TestRootLogFailureIsOnlyAWarning(t *testing.T) {
	h := newHarness("Hello")
	dir := t.TempDir()
	if code := h.run(t, "--log-file", dir, "hi"); code != domain.ExitOK {
		t.Fatalf("log failures are not fatal, got exit %d", code)
	}
	if h.stdout.String() != "Hello\n" {
		t.Fatalf("expected reply despite log failure, got %q", h.stdout.String())
	}
	if !strings.Contains(h.stderr.String(), "qw: warning:") {
		t.Fatalf("expected warning on stderr, got %q", h.stderr.String())
	}
}

func TestRootExecutePropagatesStatus(t *testing.T) {
	h := newHarness("pwd")
	if code := h.run(t, "--execute", "hi"); code != domain.ExitOK {
		t.Fatalf("expected exit 0, got %d (stderr %q)", code, h.stderr.String())
	}
	out := h.stdout.String()
	if !strings.HasPrefix(out, "pwd\n--- exec (qwen) ---\n/") {
		t.Fatalf("expected reply, exec header and a path, got %q", out)
	}
	if !strings.Contains(h.stderr.String(), "qw: exit status 0") {
		t.Fatalf("expected exit status on stderr, got %q", h.stderr.String())
	}

	failing := newHarness("echo boom >&2; exit 3")
	if code := failing.run(t, "-x", "hi"); code != 3 {
		t.Fatalf("expected exit 3, got %d", code)
	}
	stderr := failing.stderr.String()
	if !strings.Contains(stderr, "boom") || !strings.Contains(stderr, "qw: exit status 3") {
		t.Fatalf("expected command stderr and status, got %q", stderr)
	}
	if strings.Contains(stderr, "executed command exited") {
		t.Fatalf("execution failure must not be reported as an error, got %q", stderr)
	}
}

func TestRootExecutePrefersLaterStages(t *testing.T) {
	h := newHarness("echo from-qwen")
	h.stages[domain.StageClaude] = []string{"sh", "-c", "echo echo from-claude"}
	if code := h.run(t, "-q", "--claude", "-x", "hi"); code != domain.ExitOK {
		t.Fatalf("expected exit 0, got %d (stderr %q)", code, h.stderr.String())
	}
	want := "echo from-claude\nfrom-claude\n"
	if got := h.stdout.String(); got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}

func TestRootExecuteGuardrail(t *testing.T) {
	blocked := newHarness("rm -rf /")
	if code := blocked.run(t, "-x", "hi"); code != domain.ExitExecutionBlocked {
		t.Fatalf("expected exit %d, got %d", domain.ExitExecutionBlocked, code)
	}
	if strings.Contains(blocked.stdout.String(), "--- exec") {
		t.Fatalf("blocked command must not print an exec section: %q", blocked.stdout.String())
	}

	warned := newHarness("echo chmod 777 demo")
	if code := warned.run(t, "-x", "hi"); code != domain.ExitOK {
		t.Fatalf("expected exit 0, got %d (stderr %q)", code, warned.stderr.String())
	}
	if !strings.Contains(warned.stderr.String(), "qw: warning: medium risk command") {
		t.Fatalf("expected guardrail warning, got %q", warned.stderr.String())
	}
}

func TestRootVersionFlag(t *testing.T) {
	h := newHarness("unused")
	if code := h.run(t, "--version"); code != domain.ExitOK {
		t.Fatalf("expected exit 0, got %d", code)
	}
	if !strings.HasPrefix(h.stdout.String(), "qw ") {
		t.Fatalf("expected version line, got %q", h.stdout.String())
	}
	if len(h.inference.requests()) != 0 {
		t.Fatal("--version must not call the model")
	}
}

func TestRootNoticesDoNotInterleaveWithSpinner(t *testing.T) {
	h := newHarness("Hello")
	h.terminal = true
	h.inference.notice = "qw: model qwen not found locally, pulling it now\n"

	if code := h.run(t, "-m", "qwen", "hi"); code != domain.ExitOK {
		t.Fatalf("expected exit 0, got %d (stderr %q)", code, h.stderr.String())
	}
	stderr := h.stderr.String()
	if !strings.Contains(stderr, h.inference.notice) {
		t.Fatalf("expected the pull notice, got %q", stderr)
	}
	if strings.Contains(stderr, "asking qwenqw:") {
		t.Fatalf("spinner frame ran into the notice: %q", stderr)
	}
	if !strings.HasSuffix(stderr, clearLine) {
		t.Fatalf("expected the spinner to be erased, got %q", stderr)
	}
	if h.stdout.String() != "Hello\n" {
		t.Fatalf("spinner must stay off stdout, got %q", h.stdout.String())
	}
}
