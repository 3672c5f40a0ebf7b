package sampling

import (
	"fmt"
	"strings"
)

// Level is an inspection level column of the code table.
type Level string

const (
	LevelS1  Level = "S1"
	LevelS2  Level = "S2"
	LevelS3  Level = "S3"
	LevelS4  Level = "S4"
	LevelI   Level = "I"
	LevelII  Level = "II"
	LevelIII Level = "III"
)

// Levels lists every level in table column order.
var Levels = []Level{LevelS1, LevelS2, LevelS3, LevelS4, LevelI, LevelII, LevelIII}

// GeneralLevels are the levels used for routine inspections.
var GeneralLevels = []Level{LevelI, LevelII, LevelIII}

// ParseLevel accepts a level tag case-insensitively. Unknown tags fail;
// there is no default level.
func ParseLevel(s string) (Level, error) {
	l := Level(strings.ToUpper(strings.TrimSpace(s)))
	if !l.Valid() {
		return "", InvalidLevelError{Level: s}
	}
	return l, nil
}

func (l Level) Valid() bool {
	switch l {
	case LevelS1, LevelS2, LevelS3, LevelS4, LevelI, LevelII, LevelIII:
		return true
	}
	return false
}

// Severity is a defect class. Each class has its own Ac/Re curve.
type Severity string

const (
	Critical Severity = "CRITICAL"
	Major    Severity = "MAJOR"
	Minor    Severity = "MINOR"
)

// Severities in precedence order.
var Severities = []Severity{Critical, Major, Minor}

func ParseSeverity(s string) (Severity, error) {
	sev := Severity(strings.ToUpper(strings.TrimSpace(s)))
	if !sev.Valid() {
		return "", fmt.Errorf("invalid severity %q", s)
	}
	return sev, nil
}

func (s Severity) Valid() bool {
	return s == Critical || s == Major || s == Minor
}

// Rank orders severities for precedence: CRITICAL > MAJOR > MINOR.
func (s Severity) Rank() int {
	switch s {
	case Critical:
		return 3
	case Major:
		return 2
	case Minor:
		return 1
	}
	return 0
}
