package sampling

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCodeForLotMidBand(t *testing.T) {
	code, err := CodeForLot(100, LevelII)
	require.NoError(t, err)
	assert.Equal(t, Code('G'), code)

	plan, err := PlanForLot(100, LevelII)
	require.NoError(t, err)
	assert.Equal(t, Plan{Code: 'G', N: 32}, plan)
}

func TestCodeForLotBandEdges(t *testing.T) {
	cases := []struct {
		lot   int
		level Level
		want  Code
	}{
		{2, LevelII, 'B'},
		{8, LevelII, 'B'},
		{9, LevelII, 'C'},
		{90, LevelII, 'F'},
		{91, LevelII, 'G'},
		{150, LevelII, 'G'},
		{151, LevelII, 'H'},
		{500000, LevelII, 'Q'},
		{500001, LevelII, 'R'},
		{MaxLotSize, LevelIII, 'S'},
		{MaxLotSize, LevelS1, 'D'},
		{1000, LevelI, 'J'},
	}
	for _, tc := range cases {
		got, err := CodeForLot(tc.lot, tc.level)
		if err != nil {
			t.Fatalf("CodeForLot(%d, %s): %v", tc.lot, tc.level, err)
		}
		if got != tc.want {
			t.Fatalf("CodeForLot(%d, %s) = %s, want %s", tc.lot, tc.level, got, tc.want)
		}
	}
}

func TestCodeForLotOutOfRange(t *testing.T) {
	for _, lot := range []int{-5, 0, 1, MaxLotSize + 1} {
		_, err := CodeForLot(lot, LevelII)
		var oor OutOfRangeError
		if !errors.As(err, &oor) {
			t.Fatalf("lot %d: expected OutOfRangeError, got %v", lot, err)
		}
		assert.Equal(t, lot, oor.Value)
	}
}

func TestCodeForLotInvalidLevel(t *testing.T) {
	_, err := CodeForLot(100, Level("IV"))
	var inv InvalidLevelError
	require.ErrorAs(t, err, &inv)
	assert.Equal(t, "IV", inv.Level)

	_, err = ParseLevel("")
	require.ErrorAs(t, err, &inv)

	l, err := ParseLevel(" ii ")
	require.NoError(t, err)
	assert.Equal(t, LevelII, l)
}

func TestBandsPartitionWithoutGaps(t *testing.T) {
	bands := Bands()
	require.NotEmpty(t, bands)
	assert.Equal(t, MinLotSize, bands[0].Min)
	assert.Equal(t, MaxLotSize, bands[len(bands)-1].Max)
	for i := 1; i < len(bands); i++ {
		if bands[i].Min != bands[i-1].Max+1 {
			t.Fatalf("gap or overlap between %+v and %+v", bands[i-1], bands[i])
		}
	}
}

func TestEveryCodeReachable(t *testing.T) {
	seen := map[Code]bool{}
	for _, band := range Bands() {
		for _, level := range Levels {
			code, err := CodeForLot(band.Min, level)
			require.NoError(t, err)
			seen[code] = true
		}
	}
	for _, c := range Codes {
		assert.True(t, seen[c], "code %s is never produced by the table", c)
	}
	largest := 0
	for _, c := range Codes {
		n, err := SampleSizeForCode(c)
		require.NoError(t, err)
		largest = max(largest, n)
	}
	assert.Equal(t, MaxSampleSize, largest)

	for _, s := range []string{"T", "U"} {
		_, err := ParseCode(s)
		assert.Error(t, err, s)
	}
}

func TestSampleSizeNonDecreasingByCode(t *testing.T) {
	prev := 0
	for _, c := range Codes {
		n, err := SampleSizeForCode(c)
		require.NoError(t, err)
		if n < prev {
			t.Fatalf("code %s: n=%d below previous %d", c, n, prev)
		}
		prev = n
	}
	_, err := SampleSizeForCode('I')
	require.Error(t, err)
}

func TestGeneralLevelsMonotonic(t *testing.T) {
	for _, band := range Bands() {
		for _, lot := range []int{band.Min, band.Max} {
			var prev int
			for _, level := range GeneralLevels {
				plan, err := PlanForLot(lot, level)
				require.NoError(t, err)
				if plan.N < prev {
					t.Fatalf("lot %d: level %s n=%d below lower level n=%d", lot, level, plan.N, prev)
				}
				prev = plan.N
			}
		}
	}
}

func TestLimitsForScenario(t *testing.T) {
	lim, err := LimitsFor(32, AQL1_0)
	require.NoError(t, err)
	assert.Equal(t, 1, lim.Ac)
	assert.Equal(t, 2, lim.Re)
}

func TestLimitsForStepFunction(t *testing.T) {
	// 33 sits between the 32 and 50 breakpoints and takes the 50 row.
	lim, err := LimitsFor(33, AQL2_5)
	require.NoError(t, err)
	assert.Equal(t, Limit{N: 33, AQL: AQL2_5, Ac: 3, Re: 4}, lim)

	lim, err = LimitsFor(1, AQLZero)
	require.NoError(t, err)
	assert.Equal(t, 0, lim.Ac)
}

func TestLimitsForClampsAboveTable(t *testing.T) {
	top, err := LimitsFor(3150, AQLZero)
	require.NoError(t, err)
	assert.Equal(t, Limit{N: 3150, AQL: AQLZero, Ac: 7, Re: 8}, top)
	for _, n := range []int{3151, 8000, 1 << 30} {
		lim, err := LimitsFor(n, AQLZero)
		require.NoError(t, err)
		assert.Equal(t, top.Ac, lim.Ac)
		assert.Equal(t, top.Re, lim.Re)
	}
}

func TestLimitsForRejectsBadInput(t *testing.T) {
	_, err := LimitsFor(0, AQL2_5)
	var oor OutOfRangeError
	require.ErrorAs(t, err, &oor)

	_, err = LimitsFor(32, AQL(99))
	var unsupported UnsupportedAQLError
	require.ErrorAs(t, err, &unsupported)
}

func TestCurvesAcBelowReAndNonDecreasing(t *testing.T) {
	for _, aql := range AQLs {
		prevAc, prevRe := 0, 0
		for _, n := range Breakpoints(aql) {
			lim, err := LimitsFor(n, aql)
			require.NoError(t, err)
			if lim.Ac < 0 || lim.Ac >= lim.Re {
				t.Fatalf("aql %s n=%d: Ac=%d Re=%d", aql, n, lim.Ac, lim.Re)
			}
			if lim.Ac < prevAc || lim.Re < prevRe {
				t.Fatalf("aql %s n=%d: curve decreases", aql, n)
			}
			prevAc, prevRe = lim.Ac, lim.Re
		}
	}
}

func TestCurvesCoverEveryCodeSampleSize(t *testing.T) {
	for _, aql := range AQLs {
		points := map[int]bool{}
		for _, n := range Breakpoints(aql) {
			points[n] = true
		}
		for _, c := range Codes {
			n, _ := SampleSizeForCode(c)
			if !points[n] {
				t.Fatalf("aql %s has no breakpoint for code %s (n=%d)", aql, c, n)
			}
		}
	}
}

func TestParseAQL(t *testing.T) {
	a, err := ParseAQL(2.5)
	require.NoError(t, err)
	assert.Equal(t, AQL2_5, a)

	_, err = ParseAQL(6.5)
	var unsupported UnsupportedAQLError
	require.ErrorAs(t, err, &unsupported)
}

func TestResolvePlan(t *testing.T) {
	plan, err := ResolvePlan(100, LevelII, AQLZero, AQL2_5, AQL4_0)
	require.NoError(t, err)
	assert.Equal(t, 32, plan.SampleSize)
	assert.Equal(t, Code('G'), plan.Code)
	assert.Equal(t, Limit{N: 32, AQL: AQLZero, Ac: 0, Re: 1}, plan.Limits.Critical)
	assert.Equal(t, Limit{N: 32, AQL: AQL2_5, Ac: 2, Re: 3}, plan.Limits.Major)
	assert.Equal(t, Limit{N: 32, AQL: AQL4_0, Ac: 7, Re: 8}, plan.Limits.Minor)
	assert.Equal(t, plan.Limits.Major, plan.Limits.For(Major))
	assert.Equal(t, TableVersion, plan.TableVersion)

	_, err = ResolvePlan(100, Level("X"), AQLZero, AQL2_5, AQL4_0)
	require.ErrorAs(t, err, new(InvalidLevelError))
}

func TestResolvedPlanJSON(t *testing.T) {
	plan, err := ResolvePlan(100, LevelII, AQLZero, AQL2_5, AQL4_0)
	require.NoError(t, err)
	b, err := json.Marshal(plan)
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(b, &raw))
	assert.Equal(t, "G", raw["code"])
	limits := raw["limits"].(map[string]any)
	major := limits["major"].(map[string]any)
	assert.Equal(t, 2.5, major["aql"])

	var back ResolvedPlan
	require.NoError(t, json.Unmarshal(b, &back))
	assert.Equal(t, plan, back)
}
