package domain

import "time"

// File permissions constants
const (
	// DirectoryPermissions is the default permission for directories (rwxr-xr-x)
	DirectoryPermissions = 0o755
	// LogFilePermissions is the permission for appended log files (rw-r--r--)
	LogFilePermissions = 0o644
)

// Inference defaults
const (
	// DefaultEndpoint is the local Ollama server. It is not user configurable.
	DefaultEndpoint = "http://127.0.0.1:11434"
	// DefaultModel is used when neither --model nor the config file names one.
	DefaultModel = "qwen2.5-coder:0.5b-instruct"
	// DefaultTimeout bounds the inference request and each pass-through stage.
	DefaultTimeout = 180 * time.Second
)

// Default pass-through commands. Both read the upstream reply from stdin.
var (
	DefaultCodexCommand  = []string{"codex", "exec", "-"}
	DefaultClaudeCommand = []string{"claude", "-p"}
)

// Exit codes
const (
	ExitOK                   = 0
	ExitInternal             = 1
	ExitUsage                = 2
	ExitInferenceUnavailable = 3
	ExitExecutionBlocked     = 4
)

// Time formats
const (
	// TimestampFormat is the standard timestamp format
	TimestampFormat = time.RFC3339
)
