package executor

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"

	"github.com/embedkit/relay/internal/core/domain"
)

// Fingerprint derives the deduplication/cache key for a request: a sha256
// over method, URL, sorted headers and body. Header names are
// case-normalized so equivalent requests hash identically.
func Fingerprint(req *domain.Request) string {
	h := sha256.New()
	h.Write([]byte(strings.ToUpper(req.Method)))
	h.Write([]byte{0})
	h.Write([]byte(req.URL))
	h.Write([]byte{0})

	if len(req.Headers) > 0 {
		keys := make([]string, 0, len(req.Headers))
		for k := range req.Headers {
			keys = append(keys, strings.ToLower(k))
		}
		sort.Strings(keys)
		for _, k := range keys {
			h.Write([]byte(k))
			h.Write([]byte{1})
			for orig, v := range req.Headers {
				if strings.ToLower(orig) == k {
					h.Write([]byte(v))
					break
				}
			}
			h.Write([]byte{0})
		}
	}

	h.Write(req.Body)
	return hex.EncodeToString(h.Sum(nil))
}
