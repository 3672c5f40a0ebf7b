// Package defects classifies inspection answers and tallies them per severity class.
package defects

import (
	"strings"

	"qualityline/internal/sampling"
)

// Type is the answer type of a question.
type Type string

const (
	TypeBoolean      Type = "boolean"
	TypeNumericRange Type = "numericRange"
	TypeScale        Type = "scale"
	TypeText         Type = "text"
	TypePhoto        Type = "photoPresence"
	TypeChoice       Type = "choice"
)

// DefaultPassThreshold applies to scale questions without an explicit threshold.
const DefaultPassThreshold = 4

// Requirement carries the type-specific thresholds of a question.
type Requirement struct {
	// FailingValue is the boolean answer that counts as a defect ("NOK", "no", false).
	FailingValue  string   `json:"failing_value,omitempty" yaml:"failing_value,omitempty"`
	Min           *float64 `json:"min,omitempty" yaml:"min,omitempty"`
	Max           *float64 `json:"max,omitempty" yaml:"max,omitempty"`
	Expected      *float64 `json:"expected,omitempty" yaml:"expected,omitempty"`
	Tolerance     float64  `json:"tolerance,omitempty" yaml:"tolerance,omitempty"`
	PassThreshold *float64 `json:"pass_threshold,omitempty" yaml:"pass_threshold,omitempty"`
	Options       []string `json:"options,omitempty" yaml:"options,omitempty"`
}

// Question is one checklist item of an inspection plan. Severity belongs to
// the question, not to the particular failure.
type Question struct {
	ID          string            `json:"id" yaml:"id"`
	Text        string            `json:"text,omitempty" yaml:"text,omitempty"`
	Type        Type              `json:"type" yaml:"type"`
	Severity    sampling.Severity `json:"severity" yaml:"severity"`
	Required    bool              `json:"required" yaml:"required"`
	Requirement Requirement       `json:"requirement" yaml:"requirement"`
}

// ParseType accepts the canonical names plus the aliases used by checklist
// editors (ok_nok, yes_no, number, scale_1_5, photo).
func ParseType(s string) (Type, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "boolean", "ok_nok", "yes_no":
		return TypeBoolean, true
	case "numericrange", "number", "numeric":
		return TypeNumericRange, true
	case "scale", "scale_1_5", "scale_1_10":
		return TypeScale, true
	case "text":
		return TypeText, true
	case "photopresence", "photo":
		return TypePhoto, true
	case "choice", "multiple_choice":
		return TypeChoice, true
	}
	return "", false
}

// Validate checks that the question carries the thresholds its type needs.
func (q Question) Validate() error {
	if strings.TrimSpace(q.ID) == "" {
		return ClassificationError{Type: q.Type, Reason: "question id is required"}
	}
	if !q.Severity.Valid() {
		return ClassificationError{QuestionID: q.ID, Type: q.Type, Reason: "invalid severity " + string(q.Severity)}
	}
	switch q.Type {
	case TypeBoolean, TypeText, TypePhoto:
		return nil
	case TypeNumericRange:
		r := q.Requirement
		if r.Min == nil && r.Max == nil && r.Expected == nil {
			return ClassificationError{QuestionID: q.ID, Type: q.Type, Reason: "numeric question needs min, max or expected value"}
		}
		if r.Min != nil && r.Max != nil && *r.Min > *r.Max {
			return ClassificationError{QuestionID: q.ID, Type: q.Type, Reason: "min is greater than max"}
		}
		if r.Tolerance < 0 {
			return ClassificationError{QuestionID: q.ID, Type: q.Type, Reason: "tolerance must not be negative"}
		}
		return nil
	case TypeScale:
		return nil
	case TypeChoice:
		if len(q.Requirement.Options) == 0 {
			return ClassificationError{QuestionID: q.ID, Type: q.Type, Reason: "choice question needs options"}
		}
		return nil
	}
	return ClassificationError{QuestionID: q.ID, Type: q.Type, Reason: "unsupported question type"}
}

// Answer is the value recorded for one question on one sampled unit.
type Answer struct {
	QuestionID string `json:"question_id"`
	Unit       int    `json:"unit"`
	Value      any    `json:"value,omitempty"`
	Photos     int    `json:"photos,omitempty"`
}
