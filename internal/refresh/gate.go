package refresh

import (
	"context"
	"strings"

	"outagebot/internal/schedule"
	"outagebot/internal/storage"
)

const FingerprintKey = "outages_page_fingerprint"

// Gate compares the page fingerprint with the last committed one.
type Gate struct {
	cache storage.Cache
}

func NewGate(cache storage.Cache) *Gate { return &Gate{cache: cache} }

// Fingerprint hashes the relevant page text. Surrounding whitespace is
// ignored.
func Fingerprint(input string) string {
	return schedule.SHA256Hex([]byte(strings.TrimSpace(input)))
}

// Changed reports whether fp differs from the committed fingerprint. A
// missing fingerprint counts as changed.
func (g *Gate) Changed(ctx context.Context, fp string) (bool, error) {
	prev, ok, err := g.cache.GetValue(ctx, FingerprintKey)
	if err != nil {
		return false, err
	}
	return !ok || prev != fp, nil
}

// Commit records fp as processed.
func (g *Gate) Commit(ctx context.Context, fp string) error {
	return g.cache.SetValue(ctx, FingerprintKey, fp)
}
