// Package coverage computes how many sampled units must carry photographic
// evidence.
package coverage

import (
	"fmt"
	"strings"
)

// Category is the inspection category of a checklist section.
type Category string

const (
	CategoryGraphic    Category = "graphic_material"
	CategoryFunctional Category = "functional"
	CategoryPackaging  Category = "packaging"
)

// Kind is the inspection kind. Bonification inspections need a single photo.
type Kind string

const (
	KindContainer    Kind = "container"
	KindBonification Kind = "bonification"
)

// Quota percentages for graphic material, applied with integer ceilings.
const (
	GraphicSharePercent = 30
	PhotoSharePercent   = 20
)

func ParseCategory(s string) (Category, error) {
	switch c := Category(strings.ToLower(strings.TrimSpace(s))); c {
	case CategoryGraphic, CategoryFunctional, CategoryPackaging:
		return c, nil
	}
	return "", fmt.Errorf("invalid inspection category %q", s)
}

func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case KindContainer, KindBonification:
		return k, nil
	case "":
		return KindContainer, nil
	}
	return "", fmt.Errorf("invalid inspection kind %q", s)
}

// ceilPercent is ceil(n * pct / 100) for n >= 0, split so n*pct never
// overflows.
func ceilPercent(n, pct int) int {
	return n/100*pct + (n%100*pct+99)/100
}

// GraphicSubSample is ceil(n * 30%).
func GraphicSubSample(n int) int {
	if n <= 0 {
		return 0
	}
	return ceilPercent(n, GraphicSharePercent)
}

// RequiredPhotoCount returns max(1, ceil(sub * 20%)) for graphic material with
// a non-empty sub-sample and 0 for every other category.
func RequiredPhotoCount(category Category, totalSampleSize int) int {
	if category != CategoryGraphic {
		return 0
	}
	sub := GraphicSubSample(totalSampleSize)
	if sub == 0 {
		return 0
	}
	return max(1, ceilPercent(sub, PhotoSharePercent))
}

// Quota is the full photo breakdown for an inspection.
type Quota struct {
	TotalSampleSize  int `json:"total_sample_size"`
	GraphicSubSample int `json:"graphic_sub_sample"`
	FunctionalSample int `json:"functional_sample"`
	RequiredPhotos   int `json:"required_photos"`
}

// QuotaFor applies the bonification override on top of RequiredPhotoCount.
func QuotaFor(kind Kind, category Category, totalSampleSize int) Quota {
	q := Quota{TotalSampleSize: totalSampleSize, RequiredPhotos: RequiredPhotoCount(category, totalSampleSize)}
	if totalSampleSize > 0 {
		q.FunctionalSample = totalSampleSize
	}
	if category == CategoryGraphic {
		q.GraphicSubSample = GraphicSubSample(totalSampleSize)
	}
	if kind == KindBonification && totalSampleSize > 0 {
		q.RequiredPhotos = 1
	}
	return q
}
