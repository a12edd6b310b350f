package domain

import (
	"bytes"
	"encoding/json"
	"time"
)

// StageName identifies a reply-producing step.
type StageName string

const (
	StageQwen   StageName = "qwen"
	StageCodex  StageName = "codex"
	StageClaude StageName = "claude"
)

// StageResult is one produced reply. It is never mutated after creation.
type StageResult struct {
	Stage   StageName
	Text    string
	Elapsed time.Duration
}

// StageResults is the ordered, append-only list of produced replies.
type StageResults []StageResult

// Last returns the most recently produced result.
func (r StageResults) Last() (StageResult, bool) {
	if len(r) == 0 {
		return StageResult{}, false
	}
	return r[len(r)-1], true
}

// Get finds a result by stage name.
func (r StageResults) Get(stage StageName) (StageResult, bool) {
	for _, res := range r {
		if res.Stage == stage {
			return res, true
		}
	}
	return StageResult{}, false
}

// Texts maps stage name to text for every produced stage.
func (r StageResults) Texts() map[StageName]string {
	out := make(map[StageName]string, len(r))
	for _, res := range r {
		out[res.Stage] = res.Text
	}
	return out
}

// MarshalJSON encodes the results as a single object whose keys keep execution order.
func (r StageResults) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, res := range r {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := writeJSONString(&buf, string(res.Stage)); err != nil {
			return nil, err
		}
		buf.WriteByte(':')
		if err := writeJSONString(&buf, res.Text); err != nil {
			return nil, err
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// writeJSONString encodes s without HTML escaping so shell snippets stay readable.
func writeJSONString(buf *bytes.Buffer, s string) error {
	var tmp bytes.Buffer
	enc := json.NewEncoder(&tmp)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s); err != nil {
		return err
	}
	buf.Write(bytes.TrimRight(tmp.Bytes(), "\n"))
	return nil
}

// RunResult is everything one invocation produced before formatting.
type RunResult struct {
	Results StageResults
	// StageErrors holds failed pass-through stages in execution order.
	StageErrors []*StageError
}

// BestReply picks the reply to execute: claude over codex over qwen.
func (r RunResult) BestReply() (StageResult, bool) {
	for _, stage := range []StageName{StageClaude, StageCodex, StageQwen} {
		if res, ok := r.Results.Get(stage); ok {
			return res, true
		}
	}
	return StageResult{}, false
}
