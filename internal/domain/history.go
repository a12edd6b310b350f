package domain

import "time"

// LogRecord is one line of the --log-file JSON Lines output.
type LogRecord struct {
	ID        string               `json:"id"`
	Timestamp time.Time            `json:"timestamp"`
	Prompt    string               `json:"prompt"`
	Model     string               `json:"model"`
	Stages    map[StageName]string `json:"stages"`
	Errors    map[StageName]string `json:"errors,omitempty"`
}
