package bitmart

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Sign computes the X-BM-SIGN header for a signed request:
// HMAC-SHA256(secret, "{timestamp}#{memo}#{body}") hex-encoded.
func Sign(secret, memo, body string, timestampMs int64) string {
	payload := fmt.Sprintf("%d#%s#%s", timestampMs, memo, body)
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}
