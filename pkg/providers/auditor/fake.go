package auditor

import (
	"context"
	"fmt"
	"sync"
)

// Fake is an in-memory [Oracle] for testing. Tests queue canned reports
// and analyses; calls are recorded for assertions. Safe for concurrent use.
type Fake struct {
	mu         sync.Mutex
	broken     bool
	Reviews    []ReviewInput
	Decomposes []DecomposeInput
	Reports    []*AuditReport     // successive Review results
	Analyses   []*CascadeAnalysis // successive Decompose results
}

// NewFake returns a [Fake] whose Review passes everything and whose
// Decompose reports no cascade, until canned results are queued.
func NewFake() *Fake {
	return &Fake{}
}

// NewFailFake returns a [Fake] where every call fails.
func NewFailFake() *Fake {
	return &Fake{broken: true}
}

// QueueReport queues reports to be returned by successive Review calls.
func (f *Fake) QueueReport(reports ...*AuditReport) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Reports = append(f.Reports, reports...)
}

// QueueAnalysis queues analyses to be returned by successive Decompose calls.
func (f *Fake) QueueAnalysis(analyses ...*CascadeAnalysis) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Analyses = append(f.Analyses, analyses...)
}

// Review returns the next queued report, or a passing report when the
// queue is empty.
func (f *Fake) Review(_ context.Context, in ReviewInput) (*AuditReport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Reviews = append(f.Reviews, in)
	if f.broken {
		return nil, fmt.Errorf("auditor unavailable")
	}
	if len(f.Reports) > 0 {
		report := f.Reports[0]
		f.Reports = f.Reports[1:]
		return report, nil
	}
	assessment := make(map[string]CriterionAssessment, len(in.Criteria))
	for _, c := range in.Criteria {
		assessment[c.ID] = CriterionAssessment{Met: true, Reasoning: "looks good"}
	}
	return &AuditReport{
		Severity:           SeverityNone,
		Summary:            "all criteria met",
		CriteriaAssessment: assessment,
	}, nil
}

// Decompose returns the next queued analysis, or a no-cascade analysis
// when the queue is empty.
func (f *Fake) Decompose(_ context.Context, in DecomposeInput) (*CascadeAnalysis, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Decomposes = append(f.Decomposes, in)
	if f.broken {
		return nil, fmt.Errorf("auditor unavailable")
	}
	if len(f.Analyses) > 0 {
		analysis := f.Analyses[0]
		f.Analyses = f.Analyses[1:]
		return analysis, nil
	}
	return &CascadeAnalysis{
		IsCascade:  false,
		Summary:    "no downstream impact",
		Confidence: 1.0,
	}, nil
}

// ReviewCount returns the number of Review calls recorded.
func (f *Fake) ReviewCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Reviews)
}
