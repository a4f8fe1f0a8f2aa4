package rag

import (
	"fmt"
	"strings"
)

// PromptStyle selects how retrieved context and the question are composed
// into a single prompt. The style never changes retrieval, only framing.
type PromptStyle string

const (
	StyleStandard     PromptStyle = "standard"
	StyleStepByStep   PromptStyle = "step-by-step"
	StyleIssueFocused PromptStyle = "issue-focused"
)

// ParseStyle maps a request value onto a known style, defaulting to standard.
func ParseStyle(s string) PromptStyle {
	switch PromptStyle(s) {
	case StyleStepByStep, StyleIssueFocused:
		return PromptStyle(s)
	default:
		return StyleStandard
	}
}

// systemInstruction returns the analysis instruction for the style and the
// set of documents under analysis. Multi-document filters get comparative
// instructions; single-document (or unfiltered) queries get report analysis.
func systemInstruction(style PromptStyle, docIDs []string) string {
	if len(docIDs) > 1 {
		ids := strings.Join(docIDs, ", ")
		switch style {
		case StyleStepByStep:
			return fmt.Sprintf(`You are an expert Oracle DBA comparing multiple AWR reports.

Documents to analyze: %s

STEP 1 - Extract key metrics from each document (CPU usage, DB Time, top wait events, parse statistics, top SQL).
STEP 2 - Compare the metrics: which improved, which degraded, what new issues appeared.
STEP 3 - Trend analysis: is performance improving or degrading overall, and why.
STEP 4 - Recommendations: actions for degrading metrics, what to keep doing.

Always cite the document ID (e.g. [%s]) for every specific data point.`, ids, docIDs[0])
		case StyleIssueFocused:
			return fmt.Sprintf(`You are an expert Oracle DBA performing comparative analysis.

Analyzing documents: %s

Provide a structured comparison:

### EXECUTIVE SUMMARY
What changed between reports.

### METRIC COMPARISON
Key metrics side by side, with change and status.

### NEW ISSUES
Problems that appeared in later reports.

### RESOLVED ISSUES
What improved since earlier reports.

### ONGOING ISSUES
Problems that persist across reports.

### RECOMMENDATIONS
Actions to take based on the trends.

Always cite document IDs for specific values.`, ids)
		default:
			return fmt.Sprintf(`You are an expert Oracle DBA with 20 years of experience analyzing AWR reports and performance data.

You are comparing multiple documents: %s

Analyze the retrieved context systematically:
1. Identify key performance metrics from each document
2. Compare and contrast the findings
3. Highlight differences, trends, or improvements
4. Point out any performance issues or anomalies
5. Provide actionable recommendations if applicable

Cite the document ID for every specific data point. Use clear sections and bullet points.`, ids)
		}
	}

	doc := "the retrieved context"
	if len(docIDs) == 1 {
		doc = fmt.Sprintf("document [%s]", docIDs[0])
	}

	switch style {
	case StyleStepByStep:
		return fmt.Sprintf(`You are an expert Oracle DBA analyzing an AWR report.

Analyze %s step by step:

STEP 1 - Metric extraction: CPU usage, DB Time breakdown, top wait events with %% of DB time, parse statistics, buffer cache hit ratio, top SQL by elapsed time.
STEP 2 - Threshold comparison: CPU should be under 80%%, hard parses under 10%% of total, buffer cache above 95%%, no wait event dominating over 50%%.
STEP 3 - Issue identification, grouped by severity (critical, warning, info).
STEP 4 - For each issue: root cause, impact, solution, priority (High/Medium/Low) and effort (Easy/Medium/Hard).

Show your reasoning at each step. Be specific with values and cite the document ID.`, doc)
	case StyleIssueFocused:
		return fmt.Sprintf(`You are an expert Oracle DBA analyzing an AWR performance report.

Analyze %s and respond in this format:

### EXECUTIVE SUMMARY
Overall health, main findings, severity level.

### CRITICAL ISSUES
For each: the metric versus expected, root cause, impact, solution with steps, priority and effort.

### WARNINGS
Same format, for issues needing investigation.

### OBSERVATIONS
Optimization opportunities.

### TOP 3 ACTION ITEMS
Ranked, each with the expected result.

### KEY METRICS SUMMARY
CPU usage, DB time, top wait event, buffer cache hit ratio, parse efficiency.

Be specific with numbers and cite the document ID for sources.`, doc)
	default:
		return fmt.Sprintf(`You are an expert Oracle DBA with 20 years of experience analyzing AWR reports.

Analyze %s systematically:

Step 1: Key metrics analysis - identify critical metrics and compare against Oracle best practices.
Step 2: Issue identification - list metrics outside normal ranges, categorized by severity.
Step 3: Root cause analysis - explain the likely cause of each issue with evidence from the report.
Step 4: Solutions - specific, actionable recommendations, prioritized by impact and implementation effort.

Be specific with metric values and cite the document ID for your sources.`, doc)
	}
}

// BuildPrompt composes the grounded prompt: style instruction, the retrieved
// context blocks labeled by source document, and the question.
func BuildPrompt(style PromptStyle, query string, docIDs []string, contexts []string, contextDocs []string) string {
	var b strings.Builder
	b.WriteString(systemInstruction(style, docIDs))
	b.WriteString("\n\nContext:\n")
	for i, c := range contexts {
		label := ""
		if i < len(contextDocs) {
			label = fmt.Sprintf(" [%s]", contextDocs[i])
		}
		fmt.Fprintf(&b, "--- chunk %d%s ---\n%s\n", i+1, label, c)
	}
	b.WriteString("\nQuestion: ")
	b.WriteString(query)
	return b.String()
}
