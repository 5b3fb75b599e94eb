package rag

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// EvaluationCase is one line of a JSONL evaluation set. A case scores the
// fraction of Expected snippets found in the grounded passages.
type EvaluationCase struct {
	Tenant    string   `json:"tenant"`
	Namespace string   `json:"namespace"`
	Query     string   `json:"query"`
	Expected  []string `json:"expected"`
}

// EvaluationReport summarizes a retrieval evaluation run.
type EvaluationReport struct {
	Cases        int
	Skipped      int
	AverageScore float64
	Misses       []string
}

// Evaluate replays every case against the retriever and relevance gate.
// Malformed lines and cases without expectations are skipped.
func Evaluate(ctx context.Context, p *Pipeline, r io.Reader) (*EvaluationReport, error) {
	scanner := bufio.NewScanner(r)
	const maxCapacity = 4 * 1024 * 1024
	scanner.Buffer(make([]byte, 0, 64*1024), maxCapacity)

	report := &EvaluationReport{}
	var total float64
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var c EvaluationCase
		if err := json.Unmarshal([]byte(line), &c); err != nil || len(c.Expected) == 0 {
			report.Skipped++
			continue
		}

		_, grounded, err := p.Retrieve(ctx, c.Tenant, c.Namespace, c.Query)
		if err != nil {
			return nil, fmt.Errorf("failed to retrieve for query %q: %w", c.Query, err)
		}

		matched := 0
		for _, want := range c.Expected {
			for _, passage := range grounded {
				if strings.Contains(passage.Text, want) {
					matched++
					break
				}
			}
		}

		score := float64(matched) / float64(len(c.Expected))
		if matched == 0 {
			report.Misses = append(report.Misses, c.Query)
		}
		total += score
		report.Cases++
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read evaluation set: %w", err)
	}

	if report.Cases > 0 {
		report.AverageScore = total / float64(report.Cases)
	}
	return report, nil
}
