package evaluation

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"
)

// Judge is the injectable scoring capability behind the reference-free
// grounding metrics, so they can be swapped or mocked independently of the
// deterministic structural metrics.
type Judge interface {
	// Faithfulness returns the fraction of answer claims supported by the
	// context.
	Faithfulness(ctx context.Context, question, answer string, contexts []string) (float64, error)
	// ContextRelevance returns one relevance verdict per context chunk, in
	// retrieval order.
	ContextRelevance(ctx context.Context, question string, contexts []string) ([]bool, error)
	// ContextRecall returns the fraction of reference statements that can be
	// attributed to the context.
	ContextRecall(ctx context.Context, question, reference string, contexts []string) (float64, error)
}

// OpenAIJudge implements Judge over an OpenAI-compatible chat endpoint. All
// requests run at temperature zero so repeated evaluations of the same inputs
// against the same model version score identically.
type OpenAIJudge struct {
	client *openai.Client
	model  string
}

func NewOpenAIJudge(client *openai.Client, model string) *OpenAIJudge {
	return &OpenAIJudge{client: client, model: model}
}

type verdictResponse struct {
	Verdicts []bool `json:"verdicts"`
}

func (j *OpenAIJudge) verdicts(ctx context.Context, prompt string) ([]bool, error) {
	resp, err := j.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       j.model,
		Temperature: 0,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: "You are a strict evaluation judge. Respond only with a JSON object of the form {\"verdicts\": [true, false, ...]}, nothing else."},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("judge request: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("judge returned no choices")
	}

	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	// Some models wrap JSON in a code fence.
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")

	var parsed verdictResponse
	if err := json.Unmarshal([]byte(strings.TrimSpace(content)), &parsed); err != nil {
		return nil, fmt.Errorf("parsing judge verdicts: %w", err)
	}
	return parsed.Verdicts, nil
}

func supportedFraction(verdicts []bool) float64 {
	if len(verdicts) == 0 {
		return 0
	}
	supported := 0
	for _, v := range verdicts {
		if v {
			supported++
		}
	}
	return float64(supported) / float64(len(verdicts))
}

func joinContexts(contexts []string) string {
	var b strings.Builder
	for i, c := range contexts {
		fmt.Fprintf(&b, "[chunk %d]\n%s\n", i+1, c)
	}
	return b.String()
}

func (j *OpenAIJudge) Faithfulness(ctx context.Context, question, answer string, contexts []string) (float64, error) {
	prompt := fmt.Sprintf(`Context:
%s
Question: %s

Answer: %s

Break the answer into its individual factual claims. For each claim, in order, give a verdict: true if the claim is supported by the context, false otherwise.`,
		joinContexts(contexts), question, answer)

	verdicts, err := j.verdicts(ctx, prompt)
	if err != nil {
		return 0, err
	}
	return supportedFraction(verdicts), nil
}

func (j *OpenAIJudge) ContextRelevance(ctx context.Context, question string, contexts []string) ([]bool, error) {
	prompt := fmt.Sprintf(`Question: %s

Context chunks:
%s
For each chunk, in order, give a verdict: true if the chunk is useful for answering the question, false otherwise. Return exactly %d verdicts.`,
		question, joinContexts(contexts), len(contexts))

	verdicts, err := j.verdicts(ctx, prompt)
	if err != nil {
		return nil, err
	}
	if len(verdicts) != len(contexts) {
		return nil, fmt.Errorf("judge returned %d verdicts for %d chunks", len(verdicts), len(contexts))
	}
	return verdicts, nil
}

func (j *OpenAIJudge) ContextRecall(ctx context.Context, question, reference string, contexts []string) (float64, error) {
	prompt := fmt.Sprintf(`Question: %s

Context:
%s
Reference answer: %s

Break the reference answer into its individual statements. For each statement, in order, give a verdict: true if the statement can be attributed to the context, false otherwise.`,
		question, joinContexts(contexts), reference)

	verdicts, err := j.verdicts(ctx, prompt)
	if err != nil {
		return 0, err
	}
	return supportedFraction(verdicts), nil
}

// ContextPrecision computes the order-weighted precision of retrieved chunks
// from per-chunk relevance verdicts: precision@k is accumulated at each
// relevant position, so relevant chunks ranked earlier contribute more.
func ContextPrecision(verdicts []bool) float64 {
	relevant := 0
	sum := 0.0
	for i, v := range verdicts {
		if !v {
			continue
		}
		relevant++
		sum += float64(relevant) / float64(i+1)
	}
	if relevant == 0 {
		return 0
	}
	return sum / float64(relevant)
}
