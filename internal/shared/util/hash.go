package util

import (
	"crypto/md5"
	"encoding/hex"
)

// HashURL returns the hex MD5 of a URL. Cache files written by earlier
// versions of the tool are keyed the same way, so the digest must not change.
func HashURL(url string) string {
	sum := md5.Sum([]byte(url))
	return hex.EncodeToString(sum[:])
}
