package delivery

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"strings"
)

// etagHexLen is how many hex characters of the digest an ETag keeps.
const etagHexLen = 16

// ComputeETag returns a strong, quoted entity tag for body. Identical bytes
// always produce the identical tag.
func ComputeETag(body []byte) string {
	sum := sha256.Sum256(body)
	return `"` + hex.EncodeToString(sum[:])[:etagHexLen] + `"`
}

// Matches reports whether the request's If-None-Match header names etag.
// The header may list several tags, use the weak W/ prefix, or be "*".
func Matches(header http.Header, etag string) bool {
	want := normalizeETag(etag)
	if want == "" {
		return false
	}
	for _, line := range header.Values("If-None-Match") {
		for _, candidate := range strings.Split(line, ",") {
			candidate = strings.TrimSpace(candidate)
			if candidate == "*" {
				return true
			}
			if normalizeETag(candidate) == want {
				return true
			}
		}
	}
	return false
}

// normalizeETag strips the weak prefix and makes sure the tag is quoted, so
// `W/"abc"`, `"abc"` and `abc` compare equal. If-None-Match uses weak comparison.
func normalizeETag(tag string) string {
	tag = strings.TrimSpace(tag)
	tag = strings.TrimPrefix(tag, "W/")
	if tag == "" {
		return ""
	}
	if !strings.HasPrefix(tag, `"`) {
		tag = `"` + tag
	}
	if len(tag) == 1 || !strings.HasSuffix(tag, `"`) {
		tag += `"`
	}
	return tag
}

// CacheControl composes the Cache-Control value for a response that stays
// fresh for ttlSeconds. A non-positive TTL asks clients to revalidate.
func CacheControl(ttlSeconds int) string {
	if ttlSeconds <= 0 {
		return "no-cache"
	}
	return fmt.Sprintf("max-age=%d, s-maxage=%d, stale-while-revalidate=%d",
		ttlSeconds, ttlSeconds, ttlSeconds)
}
