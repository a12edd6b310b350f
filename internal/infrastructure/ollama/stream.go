package ollama

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"strings"
)

// streamChunk is one NDJSON line of a streaming /api/generate response.
type streamChunk struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
	Error    string `json:"error"`
}

// Accumulate reads newline-delimited JSON chunks from r and concatenates their
// response fragments in arrival order until a chunk with done=true arrives or the
// stream ends. Lines that are not valid JSON are passed to skip and ignored.
func Accumulate(r io.Reader, skip func(line []byte, err error)) (string, error) {
	reader := bufio.NewReader(r)
	var reply strings.Builder
	for {
		line, readErr := reader.ReadBytes('\n')
		if trimmed := bytes.TrimSpace(line); len(trimmed) > 0 {
			var chunk streamChunk
			if err := json.Unmarshal(trimmed, &chunk); err != nil {
				if skip != nil {
					skip(trimmed, err)
				}
			} else {
				if chunk.Error != "" {
					return reply.String(), serverError(chunk.Error)
				}
				reply.WriteString(chunk.Response)
				if chunk.Done {
					return reply.String(), nil
				}
			}
		}
		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				return reply.String(), nil
			}
			return reply.String(), readErr
		}
	}
}
