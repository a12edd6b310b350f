package domain

// ExecutionResult wraps details from the command executor.
type ExecutionResult struct {
	Stdout     string
	Stderr     string
	ExitCode   int
	DurationMS int64
}

// ExecutionOutcome describes a reply that was run through the system shell.
type ExecutionOutcome struct {
	Source  StageName
	Command string
	Risk    RiskAssessment
	Result  ExecutionResult
}
