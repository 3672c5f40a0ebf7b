package defects

import "fmt"

// Statistics summarises completion and defect totals for an inspection run.
type Statistics struct {
	Units                  int     `json:"units"`
	TotalQuestions         int     `json:"total_questions"`
	AnsweredQuestions      int     `json:"answered_questions"`
	RequiredQuestions      int     `json:"required_questions"`
	AnsweredRequired       int     `json:"answered_required"`
	CompletionRate         float64 `json:"completion_rate"`
	RequiredCompletionRate float64 `json:"required_completion_rate"`
	TotalDefects           int     `json:"total_defects"`
	Defects                Tally   `json:"defects"`
}

// Statistics counts distinct (unit, question) answers against the plan for
// the given number of inspected units.
func (idx Index) Statistics(answers []Answer, units int, tally Tally) Statistics {
	required := 0
	for _, q := range idx {
		if q.Required {
			required++
		}
	}
	seen := make(map[string]bool)
	st := Statistics{
		Units:             units,
		TotalQuestions:    len(idx) * units,
		RequiredQuestions: required * units,
		TotalDefects:      tally.Total(),
		Defects:           tally,
	}
	for _, a := range answers {
		q, ok := idx[a.QuestionID]
		if !ok || (isMissing(a.Value) && a.Photos == 0) {
			continue
		}
		key := fmt.Sprintf("%d/%s", a.Unit, a.QuestionID)
		if seen[key] {
			continue
		}
		seen[key] = true
		st.AnsweredQuestions++
		if q.Required {
			st.AnsweredRequired++
		}
	}
	if st.TotalQuestions > 0 {
		st.CompletionRate = float64(st.AnsweredQuestions) / float64(st.TotalQuestions) * 100
	}
	if st.RequiredQuestions > 0 {
		st.RequiredCompletionRate = float64(st.AnsweredRequired) / float64(st.RequiredQuestions) * 100
	}
	return st
}

// InspectedUnits returns the number of distinct units that carry answers.
func InspectedUnits(answers []Answer) int {
	return len(GroupByUnit(answers))
}
