package disposition

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"

	"qualityline/internal/defects"
	"qualityline/internal/sampling"
)

func limits(crit, maj, min int) sampling.Limits {
	return sampling.Limits{
		Critical: sampling.Limit{Ac: crit, Re: crit + 1},
		Major:    sampling.Limit{Ac: maj, Re: maj + 1},
		Minor:    sampling.Limit{Ac: min, Re: min + 1},
	}
}

func TestDecideScenarios(t *testing.T) {
	cases := []struct {
		name   string
		tally  defects.Tally
		limits sampling.Limits
		want   Verdict
	}{
		{"clean lot", defects.Tally{}, limits(0, 0, 0), Approved},
		{"clean lot loose limits", defects.Tally{}, limits(3, 10, 21), Approved},
		{"single critical", defects.Tally{Critical: 1}, limits(0, 5, 5), Rejected},
		{"major over Ac", defects.Tally{Major: 2}, limits(0, 1, 3), ConditionalApproval},
		{"minor over Ac", defects.Tally{Minor: 4}, limits(0, 1, 3), ConditionalApproval},
		{"at Ac", defects.Tally{Major: 1, Minor: 3}, limits(0, 1, 3), Approved},
		{"critical dominates", defects.Tally{Critical: 2, Major: 50, Minor: 50}, limits(1, 1, 1), Rejected},
	}
	for _, tc := range cases {
		if got := Decide(tc.tally, tc.limits); got != tc.want {
			t.Fatalf("%s: Decide = %s, want %s", tc.name, got, tc.want)
		}
	}
}

func TestValidateSummary(t *testing.T) {
	v := Validate(defects.Tally{Major: 2}, limits(0, 1, 3))
	assert.Equal(t, Validation{Critical: Pass, Major: Fail, Minor: Pass, Overall: ConditionalApproval}, v)
	assert.True(t, v.CanRequestConditionalApproval())
	assert.Equal(t, Fail, v.For(sampling.Major))

	r := Validate(defects.Tally{Critical: 1, Major: 2}, limits(0, 1, 3))
	assert.Equal(t, Rejected, r.Overall)
	assert.False(t, r.CanRequestConditionalApproval())
}

func TestMessage(t *testing.T) {
	l := limits(0, 1, 3)
	tally := defects.Tally{Major: 2, Minor: 4}
	msg := Message(Validate(tally, l), tally, l)
	assert.Contains(t, msg, "2 major defect(s) over Ac 1")
	assert.Contains(t, msg, "4 minor defect(s) over Ac 3")

	tally = defects.Tally{Critical: 1}
	assert.Contains(t, Message(Validate(tally, l), tally, l), "1 critical defect(s)")
	assert.Contains(t, Message(Validate(defects.Tally{}, l), defects.Tally{}, l), "approved")
}

func TestDecideProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 500
	properties := gopter.NewProperties(parameters)

	count := gen.IntRange(0, 40)
	ac := gen.IntRange(0, 21)

	properties.Property("critical over Ac always rejects", prop.ForAll(
		func(acC, extra, maj, min, acM, acm int) bool {
			tally := defects.Tally{Critical: acC + 1 + extra, Major: maj, Minor: min}
			return Decide(tally, limits(acC, acM, acm)) == Rejected
		},
		ac, gen.IntRange(0, 10), count, count, ac, ac,
	))

	properties.Property("approved iff every class within Ac", prop.ForAll(
		func(c, maj, min, acC, acM, acm int) bool {
			tally := defects.Tally{Critical: c, Major: maj, Minor: min}
			within := c <= acC && maj <= acM && min <= acm
			return (Decide(tally, limits(acC, acM, acm)) == Approved) == within
		},
		count, count, count, ac, ac, ac,
	))

	properties.Property("verdict is always one of the three states", prop.ForAll(
		func(c, maj, min, acC, acM, acm int) bool {
			return Decide(defects.Tally{Critical: c, Major: maj, Minor: min}, limits(acC, acM, acm)).Valid()
		},
		count, count, count, ac, ac, ac,
	))

	properties.TestingRun(t)
}
