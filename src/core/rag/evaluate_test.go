package rag_test

import (
	"context"
	"math"
	"strings"
	"testing"

	"askhc/src/core/rag"
)

type fakeRetriever map[string][]string

func (f fakeRetriever) Retrieve(ctx context.Context, question string, k int) ([]rag.SearchResult, error) {
	var out []rag.SearchResult
	for i, src := range f[question] {
		if i == k {
			break
		}
		out = append(out, rag.SearchResult{Chunk: rag.NewChunk(src, 0, i, "")})
	}
	return out, nil
}

func TestEvaluate(t *testing.T) {
	retriever := fakeRetriever{
		"q1": {"a.pdf", "b.pdf"},
		"q2": {"c.pdf"},
		"q3": {"x.pdf", "y.pdf", "d.pdf"},
	}
	input := strings.Join([]string{
		`{"query":"q1","expected_sources":["a.pdf","z.pdf"]}`,
		`{"query":"q2","expected_sources":["a.pdf"]}`,
		`not json`,
		``,
		`{"query":"q3","expected_sources":["d.pdf"]}`,
		`{"query":"q4","expected_sources":[]}`,
	}, "\n")

	var calls int
	report, err := rag.Evaluate(context.Background(), strings.NewReader(input), retriever, 2, func() { calls++ })
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}

	if report.Total != 3 {
		t.Errorf("Total = %d, want 3", report.Total)
	}
	if report.Skipped != 2 {
		t.Errorf("Skipped = %d, want 2", report.Skipped)
	}
	// q3 finds d.pdf only at rank 3, outside k=2.
	if report.Hits != 1 {
		t.Errorf("Hits = %d, want 1", report.Hits)
	}
	if math.Abs(report.HitRate-1.0/3) > 1e-9 {
		t.Errorf("HitRate = %v, want 1/3", report.HitRate)
	}
	if math.Abs(report.MeanRecall-0.5/3) > 1e-9 {
		t.Errorf("MeanRecall = %v, want 1/6", report.MeanRecall)
	}
	if calls != 6 {
		t.Errorf("progress calls = %d, want 6", calls)
	}
}
