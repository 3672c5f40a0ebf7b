package sampling

import (
	"encoding/json"
	"fmt"
	"math"
)

// AQL is one of the tabulated acceptable quality limits.
type AQL uint8

const (
	AQLZero AQL = iota + 1
	AQL1_0
	AQL2_5
	AQL4_0
)

// AQLs lists the tabulated curves.
var AQLs = []AQL{AQLZero, AQL1_0, AQL2_5, AQL4_0}

// ParseAQL maps a percentage onto a tabulated curve.
func ParseAQL(percent float64) (AQL, error) {
	for _, a := range AQLs {
		if math.Abs(a.Percent()-percent) < 1e-9 {
			return a, nil
		}
	}
	return 0, UnsupportedAQLError{Percent: percent}
}

func (a AQL) Percent() float64 {
	switch a {
	case AQLZero:
		return 0
	case AQL1_0:
		return 1.0
	case AQL2_5:
		return 2.5
	case AQL4_0:
		return 4.0
	}
	return math.NaN()
}

func (a AQL) String() string {
	switch a {
	case AQLZero:
		return "0"
	case AQL1_0:
		return "1.0"
	case AQL2_5:
		return "2.5"
	case AQL4_0:
		return "4.0"
	}
	return fmt.Sprintf("AQL(%d)", uint8(a))
}

func (a AQL) MarshalJSON() ([]byte, error) {
	if _, ok := curves[a]; !ok {
		return nil, fmt.Errorf("marshal unknown AQL %d", uint8(a))
	}
	return json.Marshal(a.Percent())
}

func (a *AQL) UnmarshalJSON(b []byte) error {
	var p float64
	if err := json.Unmarshal(b, &p); err != nil {
		return err
	}
	parsed, err := ParseAQL(p)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// Limit is the acceptance/rejection pair for a sample size on one curve.
// Ac < Re always holds.
type Limit struct {
	N   int `json:"n"`
	AQL AQL `json:"aql"`
	Ac  int `json:"ac"`
	Re  int `json:"re"`
}

// Accepts reports whether count defects are within the acceptance number.
func (l Limit) Accepts(count int) bool { return count <= l.Ac }

type breakpoint struct {
	n, ac, re int
}

// curves hold one step function per AQL, indexed by the sample sizes the code
// table can produce.
var curves = map[AQL][]breakpoint{
	AQLZero: {
		{2, 0, 1}, {3, 0, 1}, {5, 0, 1}, {8, 0, 1}, {13, 0, 1}, {20, 0, 1}, {32, 0, 1},
		{50, 0, 1}, {80, 1, 2}, {125, 1, 2}, {200, 2, 3}, {315, 2, 3}, {500, 2, 3},
		{800, 3, 4}, {1250, 3, 4}, {2000, 5, 6}, {3150, 7, 8},
	},
	AQL1_0: {
		{2, 0, 1}, {3, 0, 1}, {5, 0, 1}, {8, 0, 1}, {13, 0, 1}, {20, 0, 1}, {32, 1, 2},
		{50, 1, 2}, {80, 2, 3}, {125, 3, 4}, {200, 5, 6}, {315, 7, 8}, {500, 10, 11},
		{800, 14, 15}, {1250, 21, 22}, {2000, 21, 22}, {3150, 21, 22},
	},
	AQL2_5: {
		{2, 0, 1}, {3, 0, 1}, {5, 1, 2}, {8, 1, 2}, {13, 1, 2}, {20, 1, 2}, {32, 2, 3},
		{50, 3, 4}, {80, 5, 6}, {125, 7, 8}, {200, 10, 11}, {315, 10, 11}, {500, 10, 11},
		{800, 14, 15}, {1250, 21, 22}, {2000, 21, 22}, {3150, 21, 22},
	},
	AQL4_0: {
		{2, 0, 1}, {3, 1, 2}, {5, 1, 2}, {8, 2, 3}, {13, 3, 4}, {20, 5, 6}, {32, 7, 8},
		{50, 10, 11}, {80, 14, 15}, {125, 21, 22}, {200, 21, 22}, {315, 21, 22}, {500, 21, 22},
		{800, 21, 22}, {1250, 21, 22}, {2000, 21, 22}, {3150, 21, 22},
	},
}

// LimitsFor returns Ac/Re for sample size n on the given curve. It selects the
// smallest breakpoint >= n; above the last breakpoint the top row applies.
func LimitsFor(n int, aql AQL) (Limit, error) {
	curve, ok := curves[aql]
	if !ok {
		return Limit{}, UnsupportedAQLError{Percent: aql.Percent()}
	}
	if n < 1 {
		return Limit{}, OutOfRangeError{What: "sample size", Value: n, Min: 1}
	}
	bp := curve[len(curve)-1]
	for _, c := range curve {
		if c.n >= n {
			bp = c
			break
		}
	}
	return Limit{N: n, AQL: aql, Ac: bp.ac, Re: bp.re}, nil
}

// Breakpoints returns the tabulated sample sizes of a curve in ascending order.
func Breakpoints(aql AQL) []int {
	curve := curves[aql]
	out := make([]int, len(curve))
	for i, c := range curve {
		out[i] = c.n
	}
	return out
}
