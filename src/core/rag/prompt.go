package rag

import (
	"fmt"
	"strings"
)

const DefaultSystemPrompt = "You are a helpful assistant."

const groundedPromptTmpl = `Use ONLY the following context to answer the question when possible. If the context does not contain the answer, say that you don't know instead of making one up.

Context:
%s

Question: %s
Answer:`

// Compose builds the user prompt. With grounded passages the question is
// wrapped in a context-constrained instruction; without them the raw query
// is returned unchanged.
func Compose(query string, grounded []RetrievedPassage) string {
	if len(grounded) == 0 {
		return query
	}

	texts := make([]string, len(grounded))
	for i, p := range grounded {
		texts[i] = p.Text
	}
	return fmt.Sprintf(groundedPromptTmpl, strings.Join(texts, "\n\n"), query)
}
