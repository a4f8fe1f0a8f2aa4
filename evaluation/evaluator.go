package evaluation

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/mudler/xlog"

	"github.com/reportlens/reportlens/rag"
)

// Record is one immutable evaluation of an answered query. A nil score means
// that metric's computation failed; it never aborts the record.
type Record struct {
	Query     string              `json:"query"`
	Answer    string              `json:"answer"`
	Contexts  []string            `json:"contexts"`
	Reference string              `json:"reference,omitempty"`
	Scores    map[string]*float64 `json:"scores"`
	Timestamp time.Time           `json:"timestamp"`
}

// Evaluator scores each answer against its retrieved context with a fixed
// metric battery: judge-backed grounding metrics, embedding-based answer
// relevancy, and the deterministic structural metrics. The judge and embedder
// are optional; without them their metric family degrades to nil scores.
type Evaluator struct {
	judge    Judge
	embedder rag.Embedder
	log      *Log
}

func NewEvaluator(judge Judge, embedder rag.Embedder, log *Log) *Evaluator {
	return &Evaluator{judge: judge, embedder: embedder, log: log}
}

// Evaluate computes the metric battery and appends the record to the
// evaluation log. A failed metric is recorded as nil for that metric only;
// the returned error is non-nil only when the log append itself failed.
func (e *Evaluator) Evaluate(ctx context.Context, query, answer string, contexts []string, reference string) (Record, error) {
	rec := Record{
		Query:     query,
		Answer:    answer,
		Contexts:  contexts,
		Reference: reference,
		Scores:    map[string]*float64{},
		Timestamp: time.Now().UTC(),
	}

	for name, value := range StructuralScores(answer, query) {
		rec.Scores[name] = ptr(clamp(value))
	}

	rec.Scores["answer_relevancy"] = e.answerRelevancy(ctx, query, answer)
	rec.Scores["faithfulness"] = e.faithfulness(ctx, query, answer, contexts)

	precision, recall := e.contextScores(ctx, query, answer, contexts, reference)
	rec.Scores["context_precision"] = precision
	rec.Scores["context_recall"] = recall

	if e.log != nil {
		if err := e.log.Append(rec); err != nil {
			return rec, fmt.Errorf("appending evaluation record: %w", err)
		}
	}

	return rec, nil
}

// answerRelevancy is the embedding cosine similarity between the answer and
// the query, mapped to [0, 1].
func (e *Evaluator) answerRelevancy(ctx context.Context, query, answer string) *float64 {
	if e.embedder == nil || answer == "" {
		return nil
	}

	vectors, err := e.embedder.Embed(ctx, []string{query, answer})
	if err != nil {
		xlog.Warn("Answer relevancy unavailable", "error", err)
		return nil
	}

	return ptr(clamp((1 + cosine(vectors[0], vectors[1])) / 2))
}

func (e *Evaluator) faithfulness(ctx context.Context, query, answer string, contexts []string) *float64 {
	if e.judge == nil || len(contexts) == 0 {
		return nil
	}
	score, err := e.judge.Faithfulness(ctx, query, answer, contexts)
	if err != nil {
		xlog.Warn("Faithfulness unavailable", "error", err)
		return nil
	}
	return ptr(clamp(score))
}

// contextScores computes order-weighted context precision and context recall.
// Without a reference, recall degrades to a self-referential approximation
// against the answer itself; that is a designed degradation, not an error.
func (e *Evaluator) contextScores(ctx context.Context, query, answer string, contexts []string, reference string) (*float64, *float64) {
	if e.judge == nil || len(contexts) == 0 {
		return nil, nil
	}

	var precision *float64
	verdicts, err := e.judge.ContextRelevance(ctx, query, contexts)
	if err != nil {
		xlog.Warn("Context precision unavailable", "error", err)
	} else {
		precision = ptr(clamp(ContextPrecision(verdicts)))
	}

	recallTarget := reference
	if recallTarget == "" {
		recallTarget = answer
	}

	var recall *float64
	score, err := e.judge.ContextRecall(ctx, query, recallTarget, contexts)
	if err != nil {
		xlog.Warn("Context recall unavailable", "error", err)
	} else {
		recall = ptr(clamp(score))
	}

	return precision, recall
}

func cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func ptr(v float64) *float64 {
	return &v
}
