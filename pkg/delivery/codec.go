package delivery

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/goccy/go-json"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
	"github.com/rs/zerolog"

	"github.com/Sternrassler/bizcache/pkg/cache"
)

const (
	// DefaultThreshold is the smallest body worth compressing, in bytes.
	DefaultThreshold = 1024

	// DefaultLevel is the compression level used when none is configured.
	DefaultLevel = 6
)

// ErrUnsupportedEncoding is returned by Decode for an unknown content coding.
var ErrUnsupportedEncoding = errors.New("delivery: unsupported content encoding")

// Encoding is an HTTP content coding produced by the codec.
type Encoding string

const (
	EncodingNone    Encoding = ""
	EncodingGzip    Encoding = "gzip"
	EncodingDeflate Encoding = "deflate"
)

// preference is the fixed server-side order; client q-values only decide
// whether a coding is acceptable at all.
var preference = []Encoding{EncodingGzip, EncodingDeflate}

// Options configures a Codec.
type Options struct {
	// ThresholdBytes is the minimum body size to compress (default 1024)
	ThresholdBytes int

	// Level is the gzip/zlib compression level, -2..9 (default 6)
	Level int
}

// Encoded is a response body ready to write.
type Encoded struct {
	Body         []byte
	Encoding     Encoding
	OriginalSize int
}

// Codec serializes payloads and compresses them according to the client's
// Accept-Encoding. Writers are pooled; a Codec is safe for concurrent use.
type Codec struct {
	threshold int
	level     int
	logger    zerolog.Logger

	gzipPool sync.Pool
	zlibPool sync.Pool
}

// NewCodec creates a codec. Out-of-range options fall back to the defaults.
func NewCodec(opts Options, logger zerolog.Logger) *Codec {
	if opts.ThresholdBytes <= 0 {
		opts.ThresholdBytes = DefaultThreshold
	}
	if opts.Level < gzip.HuffmanOnly || opts.Level > gzip.BestCompression || opts.Level == gzip.NoCompression {
		opts.Level = DefaultLevel
	}

	c := &Codec{
		threshold: opts.ThresholdBytes,
		level:     opts.Level,
		logger:    logger,
	}
	c.gzipPool.New = func() any {
		w, _ := gzip.NewWriterLevel(io.Discard, c.level)
		return w
	}
	c.zlibPool.New = func() any {
		w, _ := zlib.NewWriterLevel(io.Discard, c.level)
		return w
	}
	return c
}

// Threshold returns the configured minimum size for compression.
func (c *Codec) Threshold() int {
	return c.threshold
}

// Encode serializes payload to JSON and compresses it if worthwhile.
// A payload that cannot be serialized fails with cache.ErrSerialize.
func (c *Codec) Encode(payload any, acceptEncoding string) (Encoded, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return Encoded{}, fmt.Errorf("%w: %v", cache.ErrSerialize, err)
	}
	return c.EncodeBytes(body, acceptEncoding), nil
}

// EncodeBytes compresses an already-serialized body. Bodies below the
// threshold, clients accepting no supported coding, and compression errors
// all yield the body unchanged with EncodingNone.
func (c *Codec) EncodeBytes(body []byte, acceptEncoding string) Encoded {
	identity := Encoded{Body: body, Encoding: EncodingNone, OriginalSize: len(body)}

	if len(body) < c.threshold {
		return identity
	}
	enc := Negotiate(acceptEncoding)
	if enc == EncodingNone {
		return identity
	}

	out, err := c.compress(enc, body)
	if err != nil {
		CompressionFallbacks.Inc()
		c.logger.Warn().Err(err).Str("encoding", string(enc)).Msg("Compression failed, sending uncompressed")
		return identity
	}

	reduction := 100 * (1 - float64(len(out))/float64(len(body)))
	PayloadBytes.WithLabelValues("original").Observe(float64(len(body)))
	PayloadBytes.WithLabelValues(string(enc)).Observe(float64(len(out)))
	c.logger.Debug().
		Str("encoding", string(enc)).
		Int("original_size", len(body)).
		Int("compressed_size", len(out)).
		Str("reduction", strconv.FormatFloat(reduction, 'f', 1, 64)+"%").
		Msg("Compressed response")

	return Encoded{Body: out, Encoding: enc, OriginalSize: len(body)}
}

type resetWriter interface {
	io.WriteCloser
	Reset(io.Writer)
}

func (c *Codec) compress(enc Encoding, body []byte) ([]byte, error) {
	var pool *sync.Pool
	switch enc {
	case EncodingGzip:
		pool = &c.gzipPool
	case EncodingDeflate:
		pool = &c.zlibPool
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedEncoding, enc)
	}

	w, ok := pool.Get().(resetWriter)
	if !ok || w == nil {
		return nil, fmt.Errorf("no %s writer for level %d", enc, c.level)
	}
	defer pool.Put(w)

	var buf bytes.Buffer
	buf.Grow(len(body) / 2)
	w.Reset(&buf)
	if _, err := w.Write(body); err != nil {
		return nil, fmt.Errorf("%s write: %w", enc, err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("%s close: %w", enc, err)
	}
	return buf.Bytes(), nil
}

// Decode reverses EncodeBytes.
func Decode(body []byte, enc Encoding) ([]byte, error) {
	switch enc {
	case EncodingNone:
		return body, nil
	case EncodingGzip:
		r, err := gzip.NewReader(bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("gzip reader: %w", err)
		}
		defer r.Close()
		return io.ReadAll(r)
	case EncodingDeflate:
		r, err := zlib.NewReader(bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("zlib reader: %w", err)
		}
		defer r.Close()
		return io.ReadAll(r)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedEncoding, enc)
	}
}

// Negotiate picks the best supported coding for an Accept-Encoding value:
// gzip, then deflate, then none. Quality values are ignored except that q=0
// refuses a coding. "*" admits every coding not refused by name.
func Negotiate(acceptEncoding string) Encoding {
	if acceptEncoding == "" {
		return EncodingNone
	}

	accepted := make(map[Encoding]bool, 2)
	refused := make(map[Encoding]bool, 2)
	wildcard := false

	for _, part := range strings.Split(acceptEncoding, ",") {
		name, params, _ := strings.Cut(part, ";")
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "" {
			continue
		}
		zero := qualityIsZero(params)

		if name == "*" {
			wildcard = !zero
			continue
		}
		enc := Encoding(name)
		if name == "x-gzip" {
			enc = EncodingGzip
		}
		if zero {
			refused[enc] = true
		} else {
			accepted[enc] = true
		}
	}

	for _, enc := range preference {
		if refused[enc] {
			continue
		}
		if accepted[enc] || wildcard {
			return enc
		}
	}
	return EncodingNone
}

func qualityIsZero(params string) bool {
	for _, p := range strings.Split(params, ";") {
		k, v, ok := strings.Cut(strings.TrimSpace(p), "=")
		if !ok || !strings.EqualFold(strings.TrimSpace(k), "q") {
			continue
		}
		q, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		return err == nil && q == 0
	}
	return false
}
