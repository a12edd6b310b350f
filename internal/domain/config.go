package domain

import "time"

// FileConfig mirrors ~/.qw/config.yaml. Every field is optional; flags win over it.
type FileConfig struct {
	Model            string           `yaml:"model"`
	Timeout          string           `yaml:"timeout"`
	Sampling         SamplingSettings `yaml:"sampling"`
	SystemPromptFile string           `yaml:"system_prompt_file"`
	Output           string           `yaml:"output"`
	LogFile          string           `yaml:"log_file"`
	Stages           StageSettings    `yaml:"stages"`
	Execution        ExecutionConfig  `yaml:"execution"`
	Security         SecuritySettings `yaml:"security"`
}

// SamplingSettings holds optional sampling defaults. Nil means "let the server decide".
type SamplingSettings struct {
	Temperature *float64 `yaml:"temperature"`
	TopP        *float64 `yaml:"top_p"`
	MaxTokens   *int     `yaml:"max_tokens"`
	Seed        *int     `yaml:"seed"`
	Stop        []string `yaml:"stop"`
}

// StageSettings declares the argv used for each pass-through stage.
type StageSettings struct {
	Codex  StageCommand `yaml:"codex"`
	Claude StageCommand `yaml:"claude"`
}

// StageCommand is an argv list; Command[0] is looked up on PATH.
type StageCommand struct {
	Command []string `yaml:"command"`
}

// ExecutionConfig controls the shell used by --execute.
type ExecutionConfig struct {
	Shell string `yaml:"shell"`
}

// SecuritySettings points at an optional guardrail rules file.
type SecuritySettings struct {
	RulesFile string `yaml:"rules_file"`
}

// OutputMode selects how stage results are rendered.
type OutputMode string

const (
	OutputPlain OutputMode = "plain"
	OutputQuiet OutputMode = "quiet"
	OutputJSON  OutputMode = "json"
)

// ParseOutputMode validates a user supplied output mode.
func ParseOutputMode(value string) (OutputMode, error) {
	switch OutputMode(value) {
	case OutputPlain, OutputQuiet, OutputJSON:
		return OutputMode(value), nil
	case "":
		return OutputPlain, nil
	default:
		return "", &UsageError{Msg: "invalid output mode " + value + " (want plain, quiet or json)"}
	}
}

// Sampling carries the generation parameters forwarded to the inference server.
type Sampling struct {
	Temperature *float64
	TopP        *float64
	MaxTokens   *int
	Seed        *int
	Stop        []string
}

// RequestConfig is the resolved, immutable configuration for a single invocation.
type RequestConfig struct {
	Prompt       string
	SystemPrompt string
	Model        string
	Sampling     Sampling
	Timeout      time.Duration

	Codex    bool
	Claude   bool
	Parallel bool

	Output   OutputMode
	AutoPull bool
	Execute  bool
	LogFile  string
	Verbose  bool
}

// EnabledStages returns the pass-through stages in their fixed execution order.
func (c RequestConfig) EnabledStages() []StageName {
	var stages []StageName
	if c.Codex {
		stages = append(stages, StageCodex)
	}
	if c.Claude {
		stages = append(stages, StageClaude)
	}
	return stages
}
