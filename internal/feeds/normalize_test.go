package feeds

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeTitleStripsZeroWidthAndPreservesCase(t *testing.T) {
	dirty := "Acme\u200bCorp Announces\ufeff Offering"
	got := NormalizeTitle(dirty)
	assert.Equal(t, "AcmeCorp Announces Offering", got)
}

func TestHashKeyFoldsCaseAndStripsZeroWidth(t *testing.T) {
	a := HashKey("https://example.com/a", "Acme\u200b Corp Offering")
	b := HashKey("https://example.com/a", "acme corp offering")
	assert.Equal(t, a, b)
}

func TestNormalizeTimeConvertsToUTC(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	assert.NoError(t, err)
	local := time.Date(2026, 7, 29, 9, 0, 0, 0, loc)

	got := NormalizeTime(local)
	assert.Equal(t, time.UTC, got.Location())
	assert.True(t, got.Equal(local))
}

func TestNormalizeTimeLeavesZeroUnchanged(t *testing.T) {
	var zero time.Time
	assert.True(t, NormalizeTime(zero).IsZero())
}
