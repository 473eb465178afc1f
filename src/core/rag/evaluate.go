package rag

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
)

// Retriever is the part of Chain used by Evaluate.
type Retriever interface {
	Retrieve(ctx context.Context, question string, k int) ([]SearchResult, error)
}

// EvaluationCase is one JSONL line of an evaluation set.
type EvaluationCase struct {
	Query           string   `json:"query"`
	ExpectedSources []string `json:"expected_sources"`
}

// EvaluationReport summarises retrieval quality over an evaluation set.
// A case is a hit when any expected source appears in the top k results;
// recall is the fraction of expected sources that appear.
type EvaluationReport struct {
	Total      int     `json:"total"`
	Hits       int     `json:"hits"`
	Skipped    int     `json:"skipped"`
	HitRate    float64 `json:"hit_rate"`
	MeanRecall float64 `json:"mean_recall"`
}

// Evaluate runs every case read from r against the retriever. Malformed
// lines and cases without expected sources are skipped. progress, if not
// nil, is called once per processed line.
func Evaluate(ctx context.Context, r io.Reader, retriever Retriever, k int, progress func()) (*EvaluationReport, error) {
	scanner := bufio.NewScanner(r)
	const maxCapacity = 4 * 1024 * 1024
	scanner.Buffer(make([]byte, 64*1024), maxCapacity)

	report := &EvaluationReport{}
	var recallSum float64

	for scanner.Scan() {
		if progress != nil {
			progress()
		}
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var c EvaluationCase
		if err := json.Unmarshal(line, &c); err != nil || c.Query == "" || len(c.ExpectedSources) == 0 {
			report.Skipped++
			continue
		}

		results, err := retriever.Retrieve(ctx, c.Query, k)
		if err != nil {
			return nil, fmt.Errorf("failed to retrieve chunks for %q: %w", c.Query, err)
		}

		retrieved := make(map[string]bool, len(results))
		for _, res := range results {
			retrieved[res.Chunk.Source] = true
		}

		var found int
		for _, s := range c.ExpectedSources {
			if retrieved[s] {
				found++
			}
		}

		report.Total++
		if found > 0 {
			report.Hits++
		}
		recallSum += float64(found) / float64(len(c.ExpectedSources))
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read evaluation set: %w", err)
	}

	if report.Total > 0 {
		report.HitRate = float64(report.Hits) / float64(report.Total)
		report.MeanRecall = recallSum / float64(report.Total)
	}
	return report, nil
}
