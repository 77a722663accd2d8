package delivery

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/Sternrassler/bizcache/pkg/cache"
)

// Pagination describes the page of a list response.
type Pagination struct {
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	Total      int `json:"total"`
	TotalPages int `json:"totalPages"`
}

// Response is a cached read ready to be delivered.
type Response struct {
	// Data is the payload; it must be JSON-serializable
	Data any

	// Pagination is set for list reads
	Pagination *Pagination

	// Outcome tells whether Data came from the cache
	Outcome cache.Outcome

	// TTLSeconds drives Cache-Control
	TTLSeconds int
}

// envelope is the body written for a cached read.
type envelope struct {
	Data       json.RawMessage `json:"data"`
	Pagination *Pagination     `json:"pagination,omitempty"`
	Cached     bool            `json:"cached"`
	CacheHit   bool            `json:"cacheHit"`
}

// fingerprint is what the ETag covers. The cached/cacheHit flags are left
// out so a hit and the miss that populated it share one tag.
type fingerprint struct {
	Data       json.RawMessage `json:"data"`
	Pagination *Pagination     `json:"pagination,omitempty"`
}

// Responder writes cached reads with conditional and compression handling.
type Responder struct {
	codec  *Codec
	logger zerolog.Logger
}

// NewResponder creates a responder that encodes bodies with codec.
func NewResponder(codec *Codec, logger zerolog.Logger) *Responder {
	return &Responder{codec: codec, logger: logger}
}

// Codec returns the codec used for bodies.
func (rs *Responder) Codec() *Codec {
	return rs.codec
}

// Respond writes resp for r. When the request's If-None-Match matches, it
// answers 304 with no body and skips compression. A payload that cannot be
// serialized is returned as an error and nothing is written.
func (rs *Responder) Respond(w http.ResponseWriter, r *http.Request, resp Response) error {
	data, err := json.Marshal(resp.Data)
	if err != nil {
		return fmt.Errorf("%w: %v", cache.ErrSerialize, err)
	}

	fp, err := json.Marshal(fingerprint{Data: data, Pagination: resp.Pagination})
	if err != nil {
		return fmt.Errorf("%w: %v", cache.ErrSerialize, err)
	}
	etag := ComputeETag(fp)

	h := w.Header()
	h.Set("ETag", etag)
	h.Set("Cache-Control", CacheControl(resp.TTLSeconds))
	h.Add("Vary", "Accept-Encoding")

	if Matches(r.Header, etag) {
		NotModified.Inc()
		rs.logger.Debug().Str("etag", etag).Str("path", r.URL.Path).Msg("Not modified")
		w.WriteHeader(http.StatusNotModified)
		return nil
	}

	body, err := json.Marshal(envelope{
		Data:       data,
		Pagination: resp.Pagination,
		Cached:     resp.Outcome.Cached(),
		CacheHit:   resp.Outcome.Hit,
	})
	if err != nil {
		return fmt.Errorf("%w: %v", cache.ErrSerialize, err)
	}

	rs.write(w, r, http.StatusOK, body)
	return nil
}

// JSON writes v with the given status, compressed when negotiated, without
// conditional handling. Use it for uncached responses such as errors.
func (rs *Responder) JSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		rs.logger.Error().Err(err).Msg("Failed to encode response")
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	w.Header().Add("Vary", "Accept-Encoding")
	rs.write(w, r, status, body)
}

func (rs *Responder) write(w http.ResponseWriter, r *http.Request, status int, body []byte) {
	enc := rs.codec.EncodeBytes(body, r.Header.Get("Accept-Encoding"))

	h := w.Header()
	h.Set("Content-Type", "application/json; charset=utf-8")
	if enc.Encoding != EncodingNone {
		h.Set("Content-Encoding", string(enc.Encoding))
	}
	h.Set("Content-Length", strconv.Itoa(len(enc.Body)))
	w.WriteHeader(status)

	if r.Method == http.MethodHead {
		return
	}
	if _, err := w.Write(enc.Body); err != nil {
		rs.logger.Debug().Err(err).Msg("Failed to write response body")
	}
}
