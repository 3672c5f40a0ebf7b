package defects

import (
	"context"
	"fmt"
	"runtime"
	"sort"

	"golang.org/x/sync/errgroup"

	"qualityline/internal/sampling"
)

// Finding is one defect attributed to a sampled unit.
type Finding struct {
	QuestionID string            `json:"question_id"`
	Unit       int               `json:"unit"`
	Severity   sampling.Severity `json:"severity"`
}

// Result is the outcome of classifying a batch of answers.
type Result struct {
	Tally    Tally     `json:"tally"`
	Findings []Finding `json:"findings,omitempty"`
	// Orphaned holds answers whose question is not part of the plan.
	Orphaned []Answer `json:"orphaned,omitempty"`
}

func (r Result) plus(o Result) Result {
	return Result{
		Tally:    r.Tally.Plus(o.Tally),
		Findings: append(r.Findings, o.Findings...),
		Orphaned: append(r.Orphaned, o.Orphaned...),
	}
}

// Index maps question ids to questions.
type Index map[string]Question

// NewIndex validates every question and indexes it by id.
func NewIndex(questions []Question) (Index, error) {
	idx := make(Index, len(questions))
	for _, q := range questions {
		if err := q.Validate(); err != nil {
			return nil, err
		}
		if _, dup := idx[q.ID]; dup {
			return nil, ClassificationError{QuestionID: q.ID, Type: q.Type, Reason: "duplicate question id"}
		}
		idx[q.ID] = q
	}
	return idx, nil
}

// AnswerKey identifies one answer slot: a question on a sampled unit.
type AnswerKey struct {
	Unit       int
	QuestionID string
}

// Evaluate classifies answers against idx. Answers for unknown questions are
// collected as orphans and do not count. A question may be answered once per
// unit; a repeat fails with ClassificationError.
func (idx Index) Evaluate(answers []Answer) (Result, error) {
	var res Result
	seen := make(map[AnswerKey]bool, len(answers))
	for _, a := range answers {
		key := AnswerKey{Unit: a.Unit, QuestionID: a.QuestionID}
		if seen[key] {
			return Result{}, ClassificationError{QuestionID: a.QuestionID, Reason: fmt.Sprintf("answered more than once for unit %d", a.Unit)}
		}
		seen[key] = true
		q, ok := idx[a.QuestionID]
		if !ok {
			res.Orphaned = append(res.Orphaned, a)
			continue
		}
		c, err := Classify(q, a)
		if err != nil {
			return Result{}, fmt.Errorf("unit %d: %w", a.Unit, err)
		}
		if c.IsDefect {
			res.Tally.Add(c.Severity)
			res.Findings = append(res.Findings, Finding{QuestionID: q.ID, Unit: a.Unit, Severity: c.Severity})
		}
	}
	return res, nil
}

// Aggregate runs the classifier over every answer and returns the tally.
func Aggregate(questions []Question, answers []Answer) (Tally, error) {
	idx, err := NewIndex(questions)
	if err != nil {
		return Tally{}, err
	}
	res, err := idx.Evaluate(answers)
	if err != nil {
		return Tally{}, err
	}
	return res.Tally, nil
}

// AggregateUnits classifies answers grouped by sampled unit concurrently and
// sums the partial results. workers <= 0 uses GOMAXPROCS.
func AggregateUnits(ctx context.Context, questions []Question, answers []Answer, workers int) (Result, error) {
	idx, err := NewIndex(questions)
	if err != nil {
		return Result{}, err
	}
	units := GroupByUnit(answers)
	keys := make([]int, 0, len(units))
	for k := range units {
		keys = append(keys, k)
	}
	sort.Ints(keys)

	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	partials := make([]Result, len(keys))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, unit := range keys {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			res, err := idx.Evaluate(units[unit])
			if err != nil {
				return err
			}
			partials[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Result{}, err
	}
	var total Result
	for _, p := range partials {
		total = total.plus(p)
	}
	SortFindings(total.Findings)
	return total, nil
}

// SortFindings orders findings worst severity first, then by unit.
func SortFindings(fs []Finding) {
	sort.SliceStable(fs, func(i, j int) bool {
		if ri, rj := fs[i].Severity.Rank(), fs[j].Severity.Rank(); ri != rj {
			return ri > rj
		}
		return fs[i].Unit < fs[j].Unit
	})
}

// GroupByUnit splits answers by sampled unit, preserving order within a unit.
func GroupByUnit(answers []Answer) map[int][]Answer {
	out := make(map[int][]Answer)
	for _, a := range answers {
		out[a.Unit] = append(out[a.Unit], a)
	}
	return out
}
