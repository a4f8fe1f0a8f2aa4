package evaluation

import (
	"strings"
)

// Structural metrics score answer quality without any external model call.
// Every score is deterministic and clamped to [0, 1].

// rubricSections are the report areas a complete analysis is expected to
// touch: the issue metrics themselves plus root-cause and recommendation
// coverage.
var rubricSections = []string{
	"wait events",
	"cpu",
	"db time",
	"sql",
	"performance",
	"metrics",
}

// Completeness measures how many rubric sections the answer covers.
func Completeness(answer string) float64 {
	lower := strings.ToLower(answer)
	covered := 0
	for _, section := range rubricSections {
		if strings.Contains(lower, section) {
			covered++
		}
	}
	return float64(covered) / float64(len(rubricSections))
}

var actionKeywords = []string{
	"recommend",
	"should",
	"implement",
	"add index",
	"optimize",
	"increase",
	"decrease",
	"modify",
	"enable",
	"disable",
	"action",
	"step",
	"priority",
	"solution",
}

// Actionability measures the presence of concrete recommendation markers;
// five or more distinct markers score 1.
func Actionability(answer string) float64 {
	lower := strings.ToLower(answer)
	count := 0
	for _, kw := range actionKeywords {
		if strings.Contains(lower, kw) {
			count++
		}
	}
	return clamp(float64(count) / 5)
}

var quantitativePatterns = []string{"%", "ms", "sec", "hours", "count", "=", ">", "<"}

// Specificity measures the density of quantitative tokens: metric units,
// comparison operators, digits and explicit context references.
func Specificity(answer string) float64 {
	count := 0
	for _, p := range quantitativePatterns {
		if strings.Contains(answer, p) {
			count++
		}
	}

	for _, field := range strings.Fields(answer) {
		if strings.ContainsAny(field, "0123456789") {
			count++
			break
		}
	}

	lower := strings.ToLower(answer)
	count += strings.Count(lower, "document") + strings.Count(lower, "context")

	return clamp(float64(count) / 10)
}

var structureIndicators = []string{"##", "###", "**", "- ", "1.", ":"}

// Structure measures formatting markers: headings, emphasis, lists, sections.
func Structure(answer string) float64 {
	count := 0
	for _, ind := range structureIndicators {
		count += strings.Count(answer, ind)
	}
	return clamp(float64(count) / 20)
}

// Relevance measures lexical overlap between the answer and the query: the
// fraction of meaningful query terms that reappear in the answer.
func Relevance(answer, query string) float64 {
	queryTerms := meaningfulTerms(query)
	if len(queryTerms) == 0 {
		return 0
	}

	answerTerms := map[string]bool{}
	for term := range meaningfulTerms(answer) {
		answerTerms[term] = true
	}

	overlap := 0
	for term := range queryTerms {
		if answerTerms[term] {
			overlap++
		}
	}
	return float64(overlap) / float64(len(queryTerms))
}

var stopwords = map[string]bool{
	"a": true, "an": true, "and": true, "are": true, "as": true, "at": true,
	"be": true, "by": true, "did": true, "do": true, "for": true, "from": true,
	"how": true, "in": true, "is": true, "it": true, "of": true, "on": true,
	"or": true, "the": true, "to": true, "was": true, "what": true,
	"when": true, "where": true, "which": true, "why": true, "with": true,
}

func meaningfulTerms(text string) map[string]bool {
	terms := map[string]bool{}
	for _, field := range strings.Fields(strings.ToLower(text)) {
		term := strings.Trim(field, ".,;:!?()[]\"'")
		if len(term) > 1 && !stopwords[term] {
			terms[term] = true
		}
	}
	return terms
}

// structuralWeights combine the individual metrics into one quality score.
var structuralWeights = map[string]float64{
	"completeness":  0.2,
	"actionability": 0.25,
	"specificity":   0.2,
	"structure":     0.15,
	"relevance":     0.2,
}

// StructuralScores computes the full structural battery plus the weighted
// overall quality score.
func StructuralScores(answer, query string) map[string]float64 {
	scores := map[string]float64{
		"completeness":  Completeness(answer),
		"actionability": Actionability(answer),
		"specificity":   Specificity(answer),
		"structure":     Structure(answer),
		"relevance":     Relevance(answer, query),
	}

	overall := 0.0
	for metric, weight := range structuralWeights {
		overall += scores[metric] * weight
	}
	scores["overall_quality"] = clamp(overall)

	return scores
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
