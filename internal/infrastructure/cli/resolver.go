package cli

import (
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"

	"github.com/doeshing/qw/internal/domain"
	"github.com/doeshing/qw/internal/pkg/filesystem"
)

// flagValues holds the raw values bound to the root command's flags.
type flagValues struct {
	model       string
	temperature float64
	topP        float64
	maxTokens   int
	seed        int
	stop        []string
	timeout     string
	systemFile  string

	codex    bool
	claude   bool
	parallel bool

	output   string
	quiet    bool
	json     bool
	autoPull bool
	execute  bool
	logFile  string
	config   string
	verbose  bool
}

func bindFlags(flags *pflag.FlagSet, v *flagValues) {
	flags.StringVarP(&v.model, "model", "m", domain.DefaultModel, "Ollama model name")
	flags.Float64Var(&v.temperature, "temperature", 0, "Sampling temperature (server default when unset)")
	flags.Float64Var(&v.topP, "top-p", 0, "Nucleus sampling top-p (server default when unset)")
	flags.IntVar(&v.maxTokens, "max-tokens", 0, "Maximum tokens to generate (server default when unset)")
	flags.IntVar(&v.seed, "seed", 0, "Random seed for reproducible replies")
	flags.StringArrayVar(&v.stop, "stop", nil, "Stop sequence (repeatable)")
	flags.StringVar(&v.timeout, "timeout", "", "Timeout for the model and each pass-through stage, e.g. 90s or 180 (default 180s)")
	flags.StringVar(&v.systemFile, "system-file", "", "Read the system prompt from this file")

	flags.BoolVar(&v.codex, "codex", false, "Pipe the model reply into codex")
	flags.BoolVar(&v.claude, "claude", false, "Pipe the model reply into claude")
	flags.BoolVar(&v.parallel, "parallel", false, "Run codex and claude concurrently")

	flags.StringVarP(&v.output, "output", "o", "", "Output mode: plain, quiet or json (default plain)")
	flags.BoolVarP(&v.quiet, "quiet", "q", false, "Print only the last reply")
	flags.BoolVar(&v.json, "json", false, "Print all replies as one JSON object")
	flags.BoolVar(&v.autoPull, "auto-pull", false, "Pull the model and retry once when it is missing")
	flags.BoolVarP(&v.execute, "execute", "x", false, "Run the best reply as a shell command (dangerous)")
	flags.StringVar(&v.logFile, "log-file", "", "Append a JSON record of this run (.db/.sqlite for SQLite)")
	flags.StringVar(&v.config, "config", "", "Config file (default ~/.qw/config.yaml, or $QW_CONFIG)")
	flags.BoolVarP(&v.verbose, "verbose", "v", false, "Enable diagnostic logging on stderr")
}

// resolveRequest merges flags, the defaults file and the prompt source into one RequestConfig.
func resolveRequest(flags *pflag.FlagSet, v flagValues, args []string, stdin io.Reader, stdinIsTerminal bool, fileCfg domain.FileConfig) (domain.RequestConfig, error) {
	prompt, err := readPrompt(args, stdin, stdinIsTerminal)
	if err != nil {
		return domain.RequestConfig{}, err
	}

	req := domain.RequestConfig{
		Prompt:   prompt,
		Model:    fileCfg.Model,
		Codex:    v.codex,
		Claude:   v.claude,
		Parallel: v.parallel,
		AutoPull: v.autoPull,
		Execute:  v.execute,
		Verbose:  v.verbose,
		LogFile:  filesystem.ExpandPath(fileCfg.LogFile),
	}
	if flags.Changed("model") || req.Model == "" {
		req.Model = v.model
	}
	if flags.Changed("log-file") {
		req.LogFile = filesystem.ExpandPath(v.logFile)
	}

	timeout := fileCfg.Timeout
	if flags.Changed("timeout") {
		timeout = v.timeout
	}
	if req.Timeout, err = parseTimeout(timeout); err != nil {
		return domain.RequestConfig{}, err
	}

	if req.Output, err = resolveOutput(flags, v, fileCfg.Output); err != nil {
		return domain.RequestConfig{}, err
	}

	req.Sampling = resolveSampling(flags, v, fileCfg.Sampling)

	systemFile := fileCfg.SystemPromptFile
	if flags.Changed("system-file") {
		systemFile = v.systemFile
	}
	if systemFile != "" {
		data, err := os.ReadFile(filesystem.ExpandPath(systemFile))
		if err != nil {
			return domain.RequestConfig{}, &domain.UsageError{Msg: "cannot read system prompt file", Err: err}
		}
		req.SystemPrompt = strings.TrimSpace(string(data))
	}

	return req, nil
}

// readPrompt joins positional words, or reads all of stdin when it is not a terminal.
func readPrompt(args []string, stdin io.Reader, stdinIsTerminal bool) (string, error) {
	if len(args) > 0 {
		prompt := strings.TrimSpace(strings.Join(args, " "))
		if prompt == "" {
			return "", &domain.UsageError{Msg: "prompt is empty"}
		}
		return prompt, nil
	}
	if stdin == nil || stdinIsTerminal {
		return "", &domain.UsageError{Msg: "provide a prompt as arguments or on stdin"}
	}
	data, err := io.ReadAll(stdin)
	if err != nil {
		return "", &domain.UsageError{Msg: "read prompt from stdin", Err: err}
	}
	prompt := strings.TrimSpace(string(data))
	if prompt == "" {
		return "", &domain.UsageError{Msg: "provide a prompt as arguments or on stdin"}
	}
	return prompt, nil
}

// parseTimeout accepts Go durations ("90s", "2m") or bare seconds ("180").
func parseTimeout(value string) (time.Duration, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return domain.DefaultTimeout, nil
	}
	var d time.Duration
	if secs, err := strconv.ParseFloat(value, 64); err == nil {
		d = time.Duration(secs * float64(time.Second))
	} else if d, err = time.ParseDuration(value); err != nil {
		return 0, &domain.UsageError{Msg: "invalid timeout " + strconv.Quote(value), Err: err}
	}
	if d <= 0 {
		return 0, &domain.UsageError{Msg: "timeout must be positive, got " + strconv.Quote(value)}
	}
	return d, nil
}

func resolveOutput(flags *pflag.FlagSet, v flagValues, fromFile string) (domain.OutputMode, error) {
	selected := 0
	for _, name := range []string{"output", "quiet", "json"} {
		if flags.Changed(name) {
			selected++
		}
	}
	if selected > 1 {
		return "", &domain.UsageError{Msg: "--output, --quiet and --json are mutually exclusive"}
	}
	switch {
	case v.quiet:
		return domain.OutputQuiet, nil
	case v.json:
		return domain.OutputJSON, nil
	case flags.Changed("output"):
		return domain.ParseOutputMode(v.output)
	default:
		return domain.ParseOutputMode(fromFile)
	}
}

func resolveSampling(flags *pflag.FlagSet, v flagValues, fromFile domain.SamplingSettings) domain.Sampling {
	s := domain.Sampling{
		Temperature: fromFile.Temperature,
		TopP:        fromFile.TopP,
		MaxTokens:   fromFile.MaxTokens,
		Seed:        fromFile.Seed,
		Stop:        fromFile.Stop,
	}
	if flags.Changed("temperature") {
		s.Temperature = &v.temperature
	}
	if flags.Changed("top-p") {
		s.TopP = &v.topP
	}
	if flags.Changed("max-tokens") {
		s.MaxTokens = &v.maxTokens
	}
	if flags.Changed("seed") {
		s.Seed = &v.seed
	}
	if flags.Changed("stop") {
		s.Stop = v.stop
	}
	return s
}
