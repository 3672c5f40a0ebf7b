package sampling

import "fmt"

// TableVersion identifies the canonical table set. Bump it whenever a band,
// code or curve changes so persisted inspections can be traced to the data
// that produced them.
const TableVersion = "2026.2"

const (
	// MinLotSize is the smallest lot the code table covers.
	MinLotSize = 2
	// MaxLotSize is the largest lot the code table covers.
	MaxLotSize = 9_999_999
	// MaxSampleSize is the sample size of the last code.
	MaxSampleSize = 3150
)

// Code is a sample size code letter. I and O are not used.
type Code byte

// Codes in ascending sample-size order.
var Codes = []Code{'A', 'B', 'C', 'D', 'E', 'F', 'G', 'H', 'J', 'K', 'L', 'M', 'N', 'P', 'Q', 'R', 'S'}

func (c Code) String() string { return string(c) }

func (c Code) MarshalText() ([]byte, error) { return []byte{byte(c)}, nil }

func (c *Code) UnmarshalText(b []byte) error {
	if len(b) != 1 {
		return fmt.Errorf("invalid sample size code %q", string(b))
	}
	code := Code(b[0])
	if _, ok := codeSampleSizes[code]; !ok {
		return fmt.Errorf("invalid sample size code %q", string(b))
	}
	*c = code
	return nil
}

// ParseCode validates a single-letter code.
func ParseCode(s string) (Code, error) {
	var c Code
	if err := c.UnmarshalText([]byte(s)); err != nil {
		return 0, err
	}
	return c, nil
}

// LotSizeRange is an inclusive band of lot sizes.
type LotSizeRange struct {
	Min int `json:"min"`
	Max int `json:"max"`
}

func (r LotSizeRange) Contains(n int) bool { return n >= r.Min && n <= r.Max }

// Plan is a code and its fixed sample size.
type Plan struct {
	Code Code `json:"code"`
	N    int  `json:"n"`
}

// The general columns are shifted one letter up from ISO 2859-1 Table 1, so
// lot 100 at level II reads G/32. The special columns follow Table 1.
type codeRow struct {
	band  LotSizeRange
	codes [7]Code // S1, S2, S3, S4, I, II, III
}

var codeTable = []codeRow{
	{LotSizeRange{2, 8}, [7]Code{'A', 'A', 'A', 'A', 'A', 'B', 'C'}},
	{LotSizeRange{9, 15}, [7]Code{'A', 'A', 'A', 'A', 'B', 'C', 'D'}},
	{LotSizeRange{16, 25}, [7]Code{'A', 'A', 'B', 'B', 'C', 'D', 'E'}},
	{LotSizeRange{26, 50}, [7]Code{'A', 'B', 'B', 'C', 'D', 'E', 'F'}},
	{LotSizeRange{51, 90}, [7]Code{'B', 'B', 'C', 'C', 'E', 'F', 'G'}},
	{LotSizeRange{91, 150}, [7]Code{'B', 'B', 'C', 'D', 'F', 'G', 'H'}},
	{LotSizeRange{151, 280}, [7]Code{'B', 'C', 'D', 'E', 'G', 'H', 'J'}},
	{LotSizeRange{281, 500}, [7]Code{'B', 'C', 'D', 'E', 'H', 'J', 'K'}},
	{LotSizeRange{501, 1200}, [7]Code{'C', 'C', 'E', 'F', 'J', 'K', 'L'}},
	{LotSizeRange{1201, 3200}, [7]Code{'C', 'D', 'E', 'G', 'K', 'L', 'M'}},
	{LotSizeRange{3201, 10000}, [7]Code{'C', 'D', 'F', 'G', 'L', 'M', 'N'}},
	{LotSizeRange{10001, 35000}, [7]Code{'C', 'D', 'F', 'H', 'M', 'N', 'P'}},
	{LotSizeRange{35001, 150000}, [7]Code{'D', 'E', 'G', 'J', 'N', 'P', 'Q'}},
	{LotSizeRange{150001, 500000}, [7]Code{'D', 'E', 'G', 'J', 'P', 'Q', 'R'}},
	{LotSizeRange{500001, MaxLotSize}, [7]Code{'D', 'E', 'H', 'K', 'Q', 'R', 'S'}},
}

var codeSampleSizes = map[Code]int{
	'A': 2, 'B': 3, 'C': 5, 'D': 8, 'E': 13, 'F': 20, 'G': 32, 'H': 50,
	'J': 80, 'K': 125, 'L': 200, 'M': 315, 'N': 500, 'P': 800, 'Q': 1250,
	'R': 2000, 'S': 3150,
}

func levelColumn(l Level) (int, bool) {
	switch l {
	case LevelS1:
		return 0, true
	case LevelS2:
		return 1, true
	case LevelS3:
		return 2, true
	case LevelS4:
		return 3, true
	case LevelI:
		return 4, true
	case LevelII:
		return 5, true
	case LevelIII:
		return 6, true
	}
	return 0, false
}

// Bands returns the lot size bands in ascending order.
func Bands() []LotSizeRange {
	out := make([]LotSizeRange, len(codeTable))
	for i, row := range codeTable {
		out[i] = row.band
	}
	return out
}

// CodeForLot finds the band containing lotSize and reads the level column.
func CodeForLot(lotSize int, level Level) (Code, error) {
	col, ok := levelColumn(level)
	if !ok {
		return 0, InvalidLevelError{Level: string(level)}
	}
	if lotSize < MinLotSize || lotSize > MaxLotSize {
		return 0, OutOfRangeError{What: "lot size", Value: lotSize, Min: MinLotSize, Max: MaxLotSize}
	}
	for _, row := range codeTable {
		if row.band.Contains(lotSize) {
			return row.codes[col], nil
		}
	}
	return 0, OutOfRangeError{What: "lot size", Value: lotSize, Min: MinLotSize, Max: MaxLotSize}
}

// SampleSizeForCode returns the fixed sample size n for a code.
func SampleSizeForCode(c Code) (int, error) {
	n, ok := codeSampleSizes[c]
	if !ok {
		return 0, fmt.Errorf("invalid sample size code %q", string(c))
	}
	return n, nil
}

// PlanForLot composes CodeForLot and SampleSizeForCode.
func PlanForLot(lotSize int, level Level) (Plan, error) {
	code, err := CodeForLot(lotSize, level)
	if err != nil {
		return Plan{}, err
	}
	n, err := SampleSizeForCode(code)
	if err != nil {
		return Plan{}, err
	}
	return Plan{Code: code, N: n}, nil
}
