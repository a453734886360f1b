package hebbian

import (
	"encoding/hex"
	"strings"

	"github.com/zeebo/blake3"
)

// Signature returns a stable hex digest for an input text, used as the
// input_signature on pattern records. Case and surrounding whitespace are
// folded so trivially re-phrased inputs map to the same record lineage.
func Signature(text string) string {
	sum := blake3.Sum256([]byte(strings.ToLower(strings.TrimSpace(text))))
	return hex.EncodeToString(sum[:])
}
