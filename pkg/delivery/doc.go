// Package delivery turns cached payloads into HTTP responses: JSON
// serialization, gzip/deflate negotiation against Accept-Encoding, and
// ETag-based 304 Not Modified handling.
package delivery
