// Package auditor abstracts the Auditor oracle: the LLM-backed reviewer
// that scores diffs against acceptance criteria and decomposes the blast
// radius of core-file changes into repair jobs.
package auditor

import "context"

// Severity classifies how badly a diff misses the mark.
type Severity string

const (
	SeverityNone  Severity = "none"
	SeverityMinor Severity = "minor"
	SeverityMajor Severity = "major"
)

// Valid reports whether s is a known severity.
func (s Severity) Valid() bool {
	switch s {
	case SeverityNone, SeverityMinor, SeverityMajor:
		return true
	}
	return false
}

// CriterionInput is one acceptance criterion handed to the oracle.
type CriterionInput struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// ReviewInput is everything the oracle needs to audit one diff.
type ReviewInput struct {
	Repo     string           `json:"repo"` // owner/name
	Branch   string           `json:"branch"`
	Commit   string           `json:"commit"`
	Criteria []CriterionInput `json:"criteria"`
	Diff     string           `json:"diff"`
}

// CriterionAssessment is the oracle's verdict on a single criterion.
type CriterionAssessment struct {
	Met           bool     `json:"met"`
	Reasoning     string   `json:"reasoning,omitempty"`
	EvidenceFiles []string `json:"evidence_files,omitempty"`
}

// AuditReport is the oracle's output for one reviewed diff. Assessments
// are keyed by criterion id; ids absent from the map were not assessed
// and must keep their previous verdict.
type AuditReport struct {
	Severity             Severity                       `json:"severity"`
	Summary              string                         `json:"summary"`
	Findings             []string                       `json:"findings,omitempty"`
	RecommendedFixPrompt string                         `json:"recommended_fix_prompt,omitempty"`
	CriteriaAssessment   map[string]CriterionAssessment `json:"criteria_assessment,omitempty"`
}

// JobPriority orders repair jobs. Higher priority survives truncation.
type JobPriority string

const (
	PriorityHigh   JobPriority = "high"
	PriorityMedium JobPriority = "medium"
	PriorityLow    JobPriority = "low"
)

// Rank returns the sort rank of p, lower is more important. Unknown
// priorities rank last.
func (p JobPriority) Rank() int {
	switch p {
	case PriorityHigh:
		return 0
	case PriorityMedium:
		return 1
	case PriorityLow:
		return 2
	}
	return 3
}

// Valid reports whether p is a known priority.
func (p JobPriority) Valid() bool {
	return p.Rank() < 3
}

// RepairJob is one unit of downstream repair work proposed by the oracle.
type RepairJob struct {
	ID              string      `json:"id"`
	Files           []string    `json:"files"`
	Prompt          string      `json:"prompt"`
	Priority        JobPriority `json:"priority"`
	EstimatedImpact string      `json:"estimated_impact,omitempty"`
}

// DecomposeInput describes a core-file change for blast-radius analysis.
type DecomposeInput struct {
	Repo         string   `json:"repo"`
	Branch       string   `json:"branch"`
	Commit       string   `json:"commit"`
	CoreDiffs    []string `json:"core_diffs"`
	ChangedPaths []string `json:"changed_paths"`
}

// CascadeAnalysis is the oracle's blast-radius decomposition. The engine
// enforces its own invariants on top: job disjointness, the confidence
// floor, and the parallelism cap.
type CascadeAnalysis struct {
	IsCascade        bool        `json:"is_cascade"`
	CoreFilesChanged []string    `json:"core_files_changed"`
	DownstreamFiles  []string    `json:"downstream_files"`
	RepairJobs       []RepairJob `json:"repair_jobs"`
	Summary          string      `json:"summary"`
	Confidence       float64     `json:"confidence"`
}

// Oracle is the narrow interface the engine consumes.
type Oracle interface {
	// Review audits a diff against the goal's acceptance criteria.
	Review(ctx context.Context, in ReviewInput) (*AuditReport, error)

	// Decompose analyzes the blast radius of a core-file change and
	// proposes disjoint repair jobs.
	Decompose(ctx context.Context, in DecomposeInput) (*CascadeAnalysis, error)
}
