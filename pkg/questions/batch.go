package questions

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/abdhe/readcoach/pkg/fragment"
	"github.com/abdhe/readcoach/pkg/normalize"
	"github.com/abdhe/readcoach/pkg/provider"
)

// Mode selects the batch call strategy.
type Mode string

const (
	// ModeSingle consolidates every fragment into one backend call.
	ModeSingle Mode = "single"

	// ModeSequential issues one backend call per fragment. A latency/cost
	// trade-off for input too large to fit one call, not a fallback for
	// single-mode parse failures.
	ModeSequential Mode = "sequential"
)

// Plan is the decision record driving batch execution.
type Plan struct {
	Mode           Mode
	Quotas         []int // per-fragment question quota, index-aligned
	TotalQuestions int
}

// BatchResult maps fragment index to its ordered questions and reports the
// true number of backend calls made.
type BatchResult struct {
	Questions map[int][]string
	Calls     int
}

// Plan derives the call strategy from aggregate fragment size: below the
// single-mode threshold everything fits one consolidated call, above it each
// fragment is generated independently.
func (g *Generator) Plan(frags []fragment.Fragment) Plan {
	total := 0
	quotas := make([]int, len(frags))
	totalQuestions := 0

	for i, f := range frags {
		total += len(f.Text)
		quotas[i] = QuotaFor(f.Text)
		totalQuestions += quotas[i]
	}

	mode := ModeSingle
	if total >= g.singleModeMaxChars {
		mode = ModeSequential
	}

	return Plan{Mode: mode, Quotas: quotas, TotalQuestions: totalQuestions}
}

// Execute runs the plan. Single mode makes one consolidated call and treats
// malformed output as a hard error: partial silent loss would misattribute
// which fragment lacks questions, which is worse than an explicit failure
// the caller can retry. Sequential mode isolates failures per fragment.
func (g *Generator) Execute(ctx context.Context, plan Plan, frags []fragment.Fragment, opts Options) (BatchResult, error) {
	if len(frags) == 0 {
		return BatchResult{Questions: map[int][]string{}}, nil
	}

	if plan.Mode == ModeSingle {
		return g.executeSingle(ctx, plan, frags, opts)
	}
	return g.executeSequential(ctx, frags, opts)
}

func (g *Generator) executeSingle(ctx context.Context, plan Plan, frags []fragment.Fragment, opts Options) (BatchResult, error) {
	var b strings.Builder
	for i, f := range frags {
		fmt.Fprintf(&b, "Fragment %d:\n%s\n\n", i, f.Text)
	}

	resp, err := g.gen.Generate(ctx, provider.Request{
		Model:       g.model,
		System:      batchSystemMessage(opts.Language, plan.Quotas),
		Prompt:      b.String(),
		Temperature: 0.7,
		TopP:        0.7,
	})
	if err != nil {
		return BatchResult{}, err
	}

	parsed, err := normalize.ParseJSON(resp.Text)
	if err != nil {
		return BatchResult{}, fmt.Errorf("batch question output: %w", err)
	}

	obj, ok := parsed.(map[string]any)
	if !ok {
		return BatchResult{}, fmt.Errorf("batch question output: %w: expected object, got %T", normalize.ErrMalformed, parsed)
	}

	questions := make(map[int][]string, len(frags))
	for key, val := range obj {
		idx, err := strconv.Atoi(strings.TrimSpace(key))
		if err != nil || idx < 0 || idx >= len(frags) {
			g.log.Warn().Str("key", key).Msg("dropping batch entry with non-index key")
			continue
		}
		list, ok := val.([]any)
		if !ok {
			g.log.Warn().Int("index", idx).Msg("dropping batch entry with non-array value")
			continue
		}
		qs, ok := stringSlice(list)
		if !ok {
			g.log.Warn().Int("index", idx).Msg("dropping batch entry with non-string elements")
			continue
		}
		questions[idx] = qs
	}

	return BatchResult{Questions: questions, Calls: 1}, nil
}

func (g *Generator) executeSequential(ctx context.Context, frags []fragment.Fragment, opts Options) (BatchResult, error) {
	questions := make(map[int][]string, len(frags))
	calls := 0

	for i, f := range frags {
		calls++
		qs, err := g.Generate(ctx, f.Text, opts)
		if err != nil {
			// A failing fragment yields an empty list; the rest continue.
			g.log.Warn().Err(err).Int("index", i).Msg("fragment question generation failed")
			questions[i] = []string{}
			continue
		}
		questions[i] = qs
	}

	return BatchResult{Questions: questions, Calls: calls}, nil
}

func stringSlice(list []any) ([]string, bool) {
	qs := make([]string, 0, len(list))
	for _, item := range list {
		s, ok := item.(string)
		if !ok {
			return nil, false
		}
		qs = append(qs, s)
	}
	return qs, true
}
