package sampling

import "fmt"

// OutOfRangeError reports a lot or sample size outside the tabulated bands.
type OutOfRangeError struct {
	What  string
	Value int
	Min   int
	Max   int
}

func (e OutOfRangeError) Error() string {
	if e.Max > 0 {
		return fmt.Sprintf("%s %d outside supported range [%d, %d]", e.What, e.Value, e.Min, e.Max)
	}
	return fmt.Sprintf("%s %d below minimum %d", e.What, e.Value, e.Min)
}

// InvalidLevelError reports an inspection level that is not one of Levels.
type InvalidLevelError struct {
	Level string
}

func (e InvalidLevelError) Error() string {
	return fmt.Sprintf("invalid inspection level %q (want one of S1,S2,S3,S4,I,II,III)", e.Level)
}

// UnsupportedAQLError reports an AQL percentage with no tabulated curve.
type UnsupportedAQLError struct {
	Percent float64
}

func (e UnsupportedAQLError) Error() string {
	return fmt.Sprintf("unsupported AQL %g%% (want one of 0, 1.0, 2.5, 4.0)", e.Percent)
}
