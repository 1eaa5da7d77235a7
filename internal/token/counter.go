package token

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

var (
	encodingOnce sync.Once
	encoding     *tiktoken.Tiktoken
)

func initEncoding() {
	encodingOnce.Do(func() {
		enc, err := tiktoken.GetEncoding("cl100k_base")
		if err == nil {
			encoding = enc
		}
	})
}

// CountText returns an accurate token count using the cl100k_base
// encoding. When tiktoken is unavailable it falls back to the heuristic
// EstimateText. Use only where exact counts matter (e.g. metrics
// finalization when the provider omits usage); pre-flight budget checks
// stay on the heuristic on purpose.
func CountText(text string) int {
	initEncoding()
	if encoding != nil {
		return len(encoding.Encode(text, nil, nil))
	}
	return EstimateText(text)
}
