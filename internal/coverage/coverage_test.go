package coverage

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequiredPhotoCount(t *testing.T) {
	cases := []struct {
		n, sub, photos int
	}{
		{100, 30, 6},
		{500, 150, 30},
		{1000, 300, 60},
		{20, 6, 2},
		{32, 10, 2},
		{13, 4, 1},
		{2, 1, 1},
		{1, 1, 1},
		{0, 0, 0},
		{-3, 0, 0},
	}
	for _, tc := range cases {
		if got := GraphicSubSample(tc.n); got != tc.sub {
			t.Fatalf("GraphicSubSample(%d) = %d, want %d", tc.n, got, tc.sub)
		}
		if got := RequiredPhotoCount(CategoryGraphic, tc.n); got != tc.photos {
			t.Fatalf("RequiredPhotoCount(%d) = %d, want %d", tc.n, got, tc.photos)
		}
	}
}

func TestRequiredPhotoCountLargeSamples(t *testing.T) {
	for _, n := range []int{3150, 1_000_000, math.MaxInt64 / 20, math.MaxInt64} {
		sub := GraphicSubSample(n)
		if sub <= 0 || sub > n {
			t.Fatalf("GraphicSubSample(%d) = %d", n, sub)
		}
		photos := RequiredPhotoCount(CategoryGraphic, n)
		if photos < 1 || photos > sub {
			t.Fatalf("RequiredPhotoCount(%d) = %d with sub-sample %d", n, photos, sub)
		}
	}
	assert.Equal(t, 945, GraphicSubSample(3150))
	assert.Equal(t, 189, RequiredPhotoCount(CategoryGraphic, 3150))
	assert.Equal(t, 300_000, GraphicSubSample(1_000_000))
}

func TestRequiredPhotoCountOtherCategories(t *testing.T) {
	assert.Equal(t, 0, RequiredPhotoCount(CategoryFunctional, 100))
	assert.Equal(t, 0, RequiredPhotoCount(CategoryPackaging, 100))
}

func TestQuotaFor(t *testing.T) {
	q := QuotaFor(KindContainer, CategoryGraphic, 100)
	assert.Equal(t, Quota{TotalSampleSize: 100, GraphicSubSample: 30, FunctionalSample: 100, RequiredPhotos: 6}, q)

	b := QuotaFor(KindBonification, CategoryGraphic, 500)
	assert.Equal(t, 1, b.RequiredPhotos)
	assert.Equal(t, 150, b.GraphicSubSample)

	assert.Equal(t, 0, QuotaFor(KindBonification, CategoryFunctional, 0).RequiredPhotos)
}

func TestParse(t *testing.T) {
	c, err := ParseCategory(" Graphic_Material ")
	require.NoError(t, err)
	assert.Equal(t, CategoryGraphic, c)
	_, err = ParseCategory("labels")
	require.Error(t, err)

	k, err := ParseKind("")
	require.NoError(t, err)
	assert.Equal(t, KindContainer, k)
	_, err = ParseKind("audit")
	require.Error(t, err)
}
