package rag

import (
	"context"
	"errors"
	"fmt"

	"github.com/mudler/xlog"

	"github.com/reportlens/reportlens/rag/types"
)

// InsufficientContextAnswer is the deterministic fallback returned when
// retrieval finds nothing relevant. No generation call is made in that case.
const InsufficientContextAnswer = "I could not find relevant context in the selected documents to answer this question. Try rephrasing the question or selecting different documents."

// Orchestrator combines retrieved chunks into a grounded prompt, invokes the
// generation capability, and returns the answer together with the exact
// context used.
type Orchestrator struct {
	retriever *Retriever
	generator Generator
}

func NewOrchestrator(retriever *Retriever, generator Generator) *Orchestrator {
	return &Orchestrator{retriever: retriever, generator: generator}
}

// Answer retrieves context for the query scoped to allowedDocIDs, composes a
// prompt in the given style, and generates an answer. Empty retrieval
// short-circuits to the insufficient-context fallback; generation failures
// propagate with their kind intact and without retry.
func (o *Orchestrator) Answer(ctx context.Context, query string, allowedDocIDs []string, style PromptStyle, k int) (types.Answer, error) {
	results, err := o.retriever.Retrieve(ctx, query, allowedDocIDs, k)
	if errors.Is(err, ErrNoContext) {
		xlog.Info("No relevant context, returning fallback answer", "query", truncate(query, 80))
		return types.Answer{Text: InsufficientContextAnswer, Grounded: false}, nil
	}
	if err != nil {
		return types.Answer{}, err
	}

	contexts := make([]string, len(results))
	contextDocs := make([]string, len(results))
	for i, r := range results {
		contexts[i] = r.Content
		contextDocs[i] = r.DocumentID
	}

	prompt := BuildPrompt(style, query, allowedDocIDs, contexts, contextDocs)

	text, err := o.generator.Generate(ctx, prompt)
	if err != nil {
		return types.Answer{}, fmt.Errorf("answering %q: %w", truncate(query, 80), err)
	}

	return types.Answer{Text: text, Contexts: results, Grounded: true}, nil
}
