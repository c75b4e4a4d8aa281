package llm

import (
	"sync"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
)

const perMessageOverhead = 4

var (
	encoderOnce sync.Once
	encoder     *tiktoken.Tiktoken
)

// defaultEncoder loads cl100k_base once. The models used here do not ship a
// public tokenizer, so counts are an approximation either way.
func defaultEncoder() *tiktoken.Tiktoken {
	encoderOnce.Do(func() {
		enc, err := tiktoken.GetEncoding("cl100k_base")
		if err == nil {
			encoder = enc
		}
	})
	return encoder
}

// EstimateTokenCount returns a token estimate for the provided content.
func EstimateTokenCount(content string) int {
	if content == "" {
		return 0
	}
	if enc := defaultEncoder(); enc != nil {
		return len(enc.Encode(content, nil, nil))
	}
	return charsToTokens(utf8.RuneCountInString(content))
}

// EstimateTokenCountForMessage returns the token estimate for a single message.
func EstimateTokenCountForMessage(msg *Message) int {
	if msg == nil {
		return 0
	}
	total := perMessageOverhead + EstimateTokenCount(msg.Content)
	for _, call := range ParseToolCalls(msg) {
		total += EstimateTokenCount(call.Name) + EstimateTokenCount(call.Arguments)
	}
	return total
}

// EstimateConversationTokens sums the estimate over a conversation.
func EstimateConversationTokens(conv []*Message) int {
	total := 0
	for _, msg := range conv {
		total += EstimateTokenCountForMessage(msg)
	}
	return total
}

func charsToTokens(chars int) int {
	if chars <= 0 {
		return 0
	}
	return (chars + 3) / 4
}
