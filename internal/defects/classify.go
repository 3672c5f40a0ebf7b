package defects

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"qualityline/internal/sampling"
)

// Classification is the verdict on a single answer. Severity is only set when
// IsDefect is true.
type Classification struct {
	IsDefect bool              `json:"is_defect"`
	Severity sampling.Severity `json:"severity,omitempty"`
}

func defect(q Question) Classification {
	return Classification{IsDefect: true, Severity: q.Severity}
}

// Classify decides whether a answers q with a defect. Unknown question types
// fail with ClassificationError instead of passing.
func Classify(q Question, a Answer) (Classification, error) {
	if err := q.Validate(); err != nil {
		return Classification{}, err
	}
	var bad bool
	var err error
	switch q.Type {
	case TypeBoolean:
		bad, err = classifyBoolean(q, a)
	case TypeNumericRange:
		bad, err = classifyNumeric(q, a)
	case TypeScale:
		bad, err = classifyScale(q, a)
	case TypeText:
		bad = q.Required && strings.TrimSpace(textValue(a.Value)) == ""
	case TypePhoto:
		bad = q.Required && !hasPhoto(a)
	case TypeChoice:
		bad = classifyChoice(q, a)
	}
	if err != nil {
		return Classification{}, err
	}
	if bad {
		return defect(q), nil
	}
	return Classification{}, nil
}

func classifyBoolean(q Question, a Answer) (bool, error) {
	if isMissing(a.Value) {
		return false, nil
	}
	var got string
	switch v := a.Value.(type) {
	case bool:
		got = strconv.FormatBool(v)
	case string:
		got = v
	default:
		return false, ClassificationError{QuestionID: q.ID, Type: q.Type, Reason: fmt.Sprintf("expected boolean answer, got %T", a.Value)}
	}
	got = normalizeBool(got)
	failing := "false"
	if q.Requirement.FailingValue != "" {
		failing = normalizeBool(q.Requirement.FailingValue)
	}
	if got != "true" && got != "false" && got != failing {
		return false, ClassificationError{QuestionID: q.ID, Type: q.Type, Reason: fmt.Sprintf("unrecognised boolean answer %q", a.Value)}
	}
	return got == failing, nil
}

// normalizeBool folds the spellings checklists use for pass/fail answers.
func normalizeBool(s string) string {
	switch v := strings.ToLower(strings.TrimSpace(s)); v {
	case "true", "yes", "sim", "ok", "y":
		return "true"
	case "false", "no", "não", "nao", "nok", "n":
		return "false"
	default:
		return v
	}
}

func classifyNumeric(q Question, a Answer) (bool, error) {
	if isMissing(a.Value) {
		return q.Required, nil
	}
	v, ok := numberValue(a.Value)
	if !ok {
		return true, nil
	}
	r := q.Requirement
	if r.Min != nil || r.Max != nil {
		return (r.Min != nil && v < *r.Min) || (r.Max != nil && v > *r.Max), nil
	}
	return math.Abs(v-*r.Expected) > r.Tolerance, nil
}

func classifyScale(q Question, a Answer) (bool, error) {
	if isMissing(a.Value) {
		return q.Required, nil
	}
	v, ok := numberValue(a.Value)
	if !ok {
		return false, ClassificationError{QuestionID: q.ID, Type: q.Type, Reason: fmt.Sprintf("scale answer %v is not a number", a.Value)}
	}
	threshold := float64(DefaultPassThreshold)
	if q.Requirement.PassThreshold != nil {
		threshold = *q.Requirement.PassThreshold
	}
	return v < threshold, nil
}

func classifyChoice(q Question, a Answer) bool {
	if isMissing(a.Value) {
		return q.Required
	}
	got := strings.TrimSpace(textValue(a.Value))
	for _, opt := range q.Requirement.Options {
		if strings.EqualFold(strings.TrimSpace(opt), got) {
			return false
		}
	}
	return true
}

func hasPhoto(a Answer) bool {
	if a.Photos > 0 {
		return true
	}
	switch v := a.Value.(type) {
	case bool:
		return v
	case string:
		switch normalizeBool(v) {
		case "true":
			return true
		case "false", "":
			return false
		}
		return true
	case []any:
		return len(v) > 0
	}
	return false
}

func isMissing(v any) bool {
	if v == nil {
		return true
	}
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s) == ""
	}
	return false
}

func textValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	default:
		return fmt.Sprint(t)
	}
}

func numberValue(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, !math.IsNaN(t)
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(strings.ReplaceAll(t, ",", ".")), 64)
		if err != nil || math.IsNaN(f) {
			return 0, false
		}
		return f, true
	}
	return 0, false
}
