package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// Fingerprint returns a stable key for a verdict input under one rule set
// generation. NaN and infinite values hash like any other value.
func Fingerprint(bundle *domain.SignalBundle, conflicts []domain.Conflict, generation uint64) string {
	h := sha256.New()
	fmt.Fprintf(h, "%d|%+v|", generation, *bundle)
	for _, c := range conflicts {
		fmt.Fprintf(h, "%q/%q/%q;", c.Type, c.Description, c.Severity)
	}
	return domain.CacheKeyFingerprint + hex.EncodeToString(h.Sum(nil))
}
