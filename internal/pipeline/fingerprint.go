package pipeline

import (
	"encoding/hex"
	"strconv"

	"golang.org/x/crypto/sha3"
)

// Fingerprint identifies a caller by a truncated SHA3-256 of its token so
// cache keys and topics never carry the token itself.
func Fingerprint(token string) string {
	sum := sha3.Sum256([]byte(token))
	return hex.EncodeToString(sum[:16])
}

// Topic is the pub/sub channel carrying update events for a fingerprint.
func Topic(fingerprint string) string {
	return "timeline." + fingerprint
}

func queryFingerprint(req Request) string {
	buf := []byte("d=" + strconv.Itoa(req.Days) + "&l=" + strconv.Itoa(req.Limit) + "&s=" + req.Scope())
	if req.Partner != "" {
		buf = append(buf, "&p="+req.Partner...)
	}
	sum := sha3.Sum256(buf)
	return hex.EncodeToString(sum[:8])
}
