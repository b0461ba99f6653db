package vdb

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
)

//
// ──────────────────────────────────────────────────────────────
//   RAW WIRE HELPERS
// ──────────────────────────────────────────────────────────────
//
// Shared plumbing for the REST/GraphQL adapters. The point of this project
// is to put generated payloads on the wire exactly as generated, so the
// helpers here do two unusual things:
//
//   • Num preserves non-finite floats. encoding/json refuses NaN and ±Inf,
//     but the dialects under test have to be handed them - whether a
//     service accepts, rejects or coerces such a vector is the outcome
//     being compared. Num renders them as the bare tokens NaN, Infinity
//     and -Infinity, matching what dynamic-language clients emit.
//
//   • Response keeps the raw body alongside any decoding, so a service's
//     native error text survives verbatim into the DatabaseResult.
//

// Num is a float that survives marshaling with non-finite values intact.
// Vectors cross the wire as []Num.
//
// encoding/json validates MarshalJSON output, so Num cannot emit the bare
// tokens directly. It emits placeholder strings instead, and Marshal
// rewrites them into NaN, Infinity and -Infinity after encoding. Any
// payload containing Num must therefore go through Marshal or
// MarshalIndent, never plain json.Marshal.
type Num float64

const (
	placeholderNaN  = `"__nonfinite_nan__"`
	placeholderInf  = `"__nonfinite_inf__"`
	placeholderNInf = `"__nonfinite_ninf__"`
)

func (n Num) MarshalJSON() ([]byte, error) {
	f := float64(n)
	switch {
	case math.IsNaN(f):
		return []byte(placeholderNaN), nil
	case math.IsInf(f, 1):
		return []byte(placeholderInf), nil
	case math.IsInf(f, -1):
		return []byte(placeholderNInf), nil
	}
	return []byte(strconv.FormatFloat(f, 'g', -1, 64)), nil
}

// Marshal encodes v and rewrites non-finite placeholders into bare
// tokens. The resulting document is not strictly valid JSON; that is
// deliberate, it matches what dynamic-language JSON writers produce.
func Marshal(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return restoreNonFinite(raw), nil
}

// MarshalIndent is Marshal with indentation, for documents meant to be
// read by humans.
func MarshalIndent(v any, prefix, indent string) ([]byte, error) {
	raw, err := json.MarshalIndent(v, prefix, indent)
	if err != nil {
		return nil, err
	}
	return restoreNonFinite(raw), nil
}

func restoreNonFinite(raw []byte) []byte {
	raw = bytes.ReplaceAll(raw, []byte(placeholderNaN), []byte("NaN"))
	raw = bytes.ReplaceAll(raw, []byte(placeholderInf), []byte("Infinity"))
	raw = bytes.ReplaceAll(raw, []byte(placeholderNInf), []byte("-Infinity"))
	return raw
}

// WireVector converts a vector for payload embedding, keeping every
// component including non-finite ones.
func WireVector(v []float32) []Num {
	out := make([]Num, len(v))
	for i, f := range v {
		out[i] = Num(f)
	}
	return out
}

// WireVectors converts a batch of vectors.
func WireVectors(vs [][]float32) [][]Num {
	out := make([][]Num, len(vs))
	for i, v := range vs {
		out[i] = WireVector(v)
	}
	return out
}

// GraphQLVector renders a vector as an inline GraphQL list literal,
// using the same non-finite tokens as Num.
func GraphQLVector(v []float32) string {
	var b strings.Builder
	b.WriteByte('[')
	for i, f := range v {
		if i > 0 {
			b.WriteByte(',')
		}
		f64 := float64(f)
		switch {
		case math.IsNaN(f64):
			b.WriteString("NaN")
		case math.IsInf(f64, 1):
			b.WriteString("Infinity")
		case math.IsInf(f64, -1):
			b.WriteString("-Infinity")
		default:
			b.WriteString(strconv.FormatFloat(f64, 'g', -1, 64))
		}
	}
	b.WriteByte(']')
	return b.String()
}

// Response is one settled wire round trip.
type Response struct {
	// Status is the HTTP status code.
	Status int

	// Body is the raw response body, preserved verbatim.
	Body []byte
}

// OK reports whether the status is in the 2xx range.
func (r *Response) OK() bool { return r.Status >= 200 && r.Status < 300 }

// Decode unmarshals the body into v. A body that does not parse is a
// protocol-shape failure for the caller to classify.
func (r *Response) Decode(v any) error {
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// Client is the reusable HTTP session one adapter owns exclusively.
type Client struct {
	base string
	http *http.Client
}

// NewClient creates a session rooted at base, e.g. "http://localhost:6333".
// Per-call deadlines come from the caller's context; the transport itself
// carries no timeout so the dispatcher stays in control.
func NewClient(base string) *Client {
	return &Client{
		base: strings.TrimRight(base, "/"),
		http: &http.Client{},
	}
}

// BaseURL returns the session's root URL.
func (c *Client) BaseURL() string { return c.base }

// Close releases idle connections. Idempotent.
func (c *Client) Close() {
	c.http.CloseIdleConnections()
}

// Do performs one JSON round trip. A nil body sends no payload. The
// returned error is transport-level only (refusal, deadline); HTTP error
// statuses come back as a Response for the adapter to interpret, since a
// 4xx is a service verdict, not a harness failure.
func (c *Client) Do(ctx context.Context, method, path string, body any) (*Response, error) {
	var payload io.Reader
	if body != nil {
		raw, err := Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		payload = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, payload)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	return &Response{Status: resp.StatusCode, Body: raw}, nil
}

// Classify wraps a transport-level error from Do into the taxonomy:
// expired deadlines become timeouts, everything else at that level is a
// connection failure.
func Classify(service, op string, err error) *Error {
	kind := KindConnection
	var nerr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &nerr) && nerr.Timeout()) {
		kind = KindTimeout
	}
	return &Error{Service: service, Op: op, Kind: kind, Err: err}
}

// ServiceErr builds a service-rejection error preserving the raw body.
func ServiceErr(service, op string, resp *Response) *Error {
	return &Error{
		Service: service,
		Op:      op,
		Kind:    KindService,
		Status:  resp.Status,
		Body:    string(resp.Body),
	}
}

// ProtocolErr builds a malformed-response error preserving the raw body.
func ProtocolErr(service, op string, resp *Response, err error) *Error {
	e := &Error{Service: service, Op: op, Kind: KindProtocol, Err: err}
	if resp != nil {
		e.Status = resp.Status
		e.Body = string(resp.Body)
	}
	return e
}
