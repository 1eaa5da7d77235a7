// Package id produces prefixed identifiers for requests, jobs and tool
// calls so log lines stay greppable by entity kind.
package id

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// NewRequestID generates an identifier for a single LLM API call.
func NewRequestID() string {
	return newIdentifier("req")
}

// NewJobID generates an identifier for a batch job record.
func NewJobID() string {
	return newIdentifier("job")
}

// NewToolCallID generates an identifier for a single tool dispatch.
func NewToolCallID() string {
	return newIdentifier("call")
}

func newIdentifier(prefix string) string {
	raw := strings.ReplaceAll(uuid.NewString(), "-", "")
	return fmt.Sprintf("%s_%s", prefix, raw[:20])
}
