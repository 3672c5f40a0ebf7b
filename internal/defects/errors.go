package defects

import "fmt"

// ClassificationError reports an unsupported question type or an answer that
// cannot be judged against its question.
type ClassificationError struct {
	QuestionID string
	Type       Type
	Reason     string
}

func (e ClassificationError) Error() string {
	if e.QuestionID == "" {
		return fmt.Sprintf("classification: %s", e.Reason)
	}
	if e.Type == "" {
		return fmt.Sprintf("classification of question %s: %s", e.QuestionID, e.Reason)
	}
	return fmt.Sprintf("classification of question %s (%s): %s", e.QuestionID, e.Type, e.Reason)
}
