package engine

import (
	"fmt"
	"sort"
	"strings"

	"github.com/drover-ai/drover/pkg/providers/auditor"
)

// Excerpt bounds for remediation prompts. Large diffs and logs are
// truncated so the Agent Provider's prompt limit is never hit.
const (
	maxDiffExcerpt = 8000
	maxLogExcerpt  = 4000
)

// buildReviewComment renders the human-readable review posted to the change
// proposal or commit.
func buildReviewComment(report *auditor.AuditReport) string {
	var b strings.Builder
	b.WriteString("## Automated Review [Auto]\n\n")
	fmt.Fprintf(&b, "**Severity:** %s\n\n", report.Severity)
	if report.Summary != "" {
		fmt.Fprintf(&b, "%s\n\n", report.Summary)
	}

	if len(report.CriteriaAssessment) > 0 {
		b.WriteString("### Acceptance criteria\n\n")
		met, unmet := 0, 0
		for _, assessment := range report.CriteriaAssessment {
			if assessment.Met {
				met++
			} else {
				unmet++
			}
		}
		fmt.Fprintf(&b, "%d met, %d unmet.\n\n", met, unmet)
		for _, id := range sortedAssessmentIDs(report.CriteriaAssessment) {
			assessment := report.CriteriaAssessment[id]
			mark := "✅"
			if !assessment.Met {
				mark = "❌"
			}
			fmt.Fprintf(&b, "- %s `%s`", mark, id)
			if assessment.Reasoning != "" {
				fmt.Fprintf(&b, ": %s", assessment.Reasoning)
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	if len(report.Findings) > 0 {
		b.WriteString("### Findings\n\n")
		for _, finding := range report.Findings {
			fmt.Fprintf(&b, "- %s\n", finding)
		}
	}

	return b.String()
}

// buildRemediationPrompt builds the child agent's prompt from a failed
// review: the Auditor's findings plus the offending diff.
func buildRemediationPrompt(report *auditor.AuditReport, diff string) string {
	var b strings.Builder
	b.WriteString("A previous agent's change failed review. Fix the issues below without undoing the intended change.\n\n")

	if report.RecommendedFixPrompt != "" {
		fmt.Fprintf(&b, "Recommended fix:\n%s\n\n", report.RecommendedFixPrompt)
	}
	if report.Summary != "" {
		fmt.Fprintf(&b, "Review summary: %s\n\n", report.Summary)
	}
	if len(report.Findings) > 0 {
		b.WriteString("Findings:\n")
		for _, finding := range report.Findings {
			fmt.Fprintf(&b, "- %s\n", finding)
		}
		b.WriteString("\n")
	}
	for _, id := range sortedAssessmentIDs(report.CriteriaAssessment) {
		assessment := report.CriteriaAssessment[id]
		if assessment.Met {
			continue
		}
		fmt.Fprintf(&b, "Unmet criterion %s: %s\n", id, assessment.Reasoning)
	}

	if diff != "" {
		fmt.Fprintf(&b, "\nThe reviewed diff:\n```diff\n%s\n```\n", truncate(diff, maxDiffExcerpt))
	}
	return b.String()
}

// sortedAssessmentIDs keeps comment and prompt rendering deterministic.
func sortedAssessmentIDs(assessment map[string]auditor.CriterionAssessment) []string {
	ids := make([]string, 0, len(assessment))
	for id := range assessment {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// buildCIRemediationPrompt builds the child agent's prompt from a CI
// failure: the failing pipeline, a log excerpt, and the head commit diff.
func buildCIRemediationPrompt(checkName, logs, diff string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "The CI pipeline %q failed for the latest commit on this branch. Diagnose and fix the failure.\n", checkName)

	if logs != "" {
		fmt.Fprintf(&b, "\nCI log excerpt:\n```\n%s\n```\n", truncate(logs, maxLogExcerpt))
	}
	if diff != "" {
		fmt.Fprintf(&b, "\nThe commit diff:\n```diff\n%s\n```\n", truncate(diff, maxDiffExcerpt))
	}
	return b.String()
}
