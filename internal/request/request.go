// Package request turns the raw bytes of an HTTP/1.1 request into a Request.
//
// Only the subset the chat server needs is understood: the request line, a
// flat header block, and an application/x-www-form-urlencoded body. Nothing
// here aborts on malformed input; problems are either returned as sentinel
// errors from Read or recorded on the Request as diagnostics.
package request

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"
)

var log = slog.Default()

// MaxRequestSize is the capacity of the per-connection read buffer. A request
// that fills it completely is rejected as too large.
const MaxRequestSize = 4096

// FormURLEncoded is the only request body media type the server decodes.
const FormURLEncoded = "application/x-www-form-urlencoded"

// bodyGracePeriod is how long Read waits for a form body that did not arrive
// with its headers when no Content-Length was sent.
var bodyGracePeriod = 100 * time.Millisecond

var (
	// ErrRequestTooLarge means the request filled the whole read buffer.
	ErrRequestTooLarge = errors.New("request exceeds maximum size")
	// ErrEmptyRequest means the peer closed the connection without sending anything.
	ErrEmptyRequest = errors.New("empty request")
)

// Method is the request method as far as the router cares.
type Method int

const (
	MethodUnrecognized Method = iota
	MethodGet
	MethodPost
)

func parseMethod(token string) Method {
	switch token {
	case "GET":
		return MethodGet
	case "POST":
		return MethodPost
	default:
		return MethodUnrecognized
	}
}

func (m Method) String() string {
	switch m {
	case MethodGet:
		return "GET"
	case MethodPost:
		return "POST"
	default:
		return "UNRECOGNIZED"
	}
}

// ContentType classifies the declared Content-Type of a request.
type ContentType int

const (
	ContentTypeNone ContentType = iota
	ContentTypeForm
	ContentTypeUnsupported
)

func parseContentType(value string) ContentType {
	if value == "" {
		return ContentTypeNone
	}
	mediaType, _, _ := strings.Cut(value, ";")
	if strings.EqualFold(strings.TrimSpace(mediaType), FormURLEncoded) {
		return ContentTypeForm
	}
	return ContentTypeUnsupported
}

// Request is a parsed HTTP request.
type Request struct {
	Method  Method
	Path    string
	HasPath bool // false when the request line had fewer than two tokens

	Header         Header
	ContentType    ContentType
	RawContentType string

	Form map[string]string

	// Diagnostics lists form pairs that were skipped as malformed.
	Diagnostics []string
}

// Route returns "METHOD /path", the key the dispatcher matches on.
func (r *Request) Route() string {
	return r.Method.String() + " " + r.Path
}

// FormValue returns the decoded form field key.
func (r *Request) FormValue(key string) (string, bool) {
	v, ok := r.Form[key]
	return v, ok
}

// Read reads a single request from rd into a MaxRequestSize buffer and
// parses it. Reading stops at EOF, or once the header block and any
// Content-Length body have arrived. A form request without Content-Length
// whose body is still missing gets one bodyGracePeriod wait when rd supports
// read deadlines. A request that fills the buffer yields ErrRequestTooLarge;
// a connection closed before any byte yields ErrEmptyRequest; any other read
// failure is returned wrapped.
func Read(rd io.Reader) (*Request, error) {
	buf := make([]byte, MaxRequestSize)
	n := 0
	waiting := false

loop:
	for {
		m, err := rd.Read(buf[n:])
		n += m
		if n == len(buf) {
			return nil, ErrRequestTooLarge
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			if waiting && errors.Is(err, os.ErrDeadlineExceeded) {
				break
			}
			return nil, fmt.Errorf("read request: %w", err)
		}

		switch progress(buf[:n]) {
		case readDone:
			break loop
		case readAwaitingBody:
			if waiting {
				break loop
			}
			dl, ok := rd.(readDeadliner)
			if !ok {
				break loop
			}
			waiting = true
			_ = dl.SetReadDeadline(time.Now().Add(bodyGracePeriod))
			defer dl.SetReadDeadline(time.Time{})
		}
	}

	if n == 0 {
		return nil, ErrEmptyRequest
	}
	return Parse(buf[:n]), nil
}

type readDeadliner interface {
	SetReadDeadline(t time.Time) error
}

type readState int

const (
	readMore readState = iota
	readDone
	readAwaitingBody // form headers, no Content-Length, no body bytes yet
)

// progress reports whether b holds the whole header block plus as many body
// bytes as Content-Length announces.
func progress(b []byte) readState {
	head, body, ok := splitHead(string(b))
	if !ok {
		return readMore
	}

	form := false
	for _, line := range strings.Split(head, "\n") {
		name, value, found := strings.Cut(line, ":")
		if !found {
			continue
		}
		name = strings.TrimSpace(name)
		switch {
		case strings.EqualFold(name, "Content-Length"):
			length, err := strconv.Atoi(strings.TrimSpace(value))
			if err != nil || len(body) >= length {
				return readDone
			}
			return readMore
		case strings.EqualFold(name, "Content-Type"):
			form = parseContentType(strings.TrimSpace(value)) == ContentTypeForm
		}
	}

	if form && body == "" {
		return readAwaitingBody
	}
	return readDone
}

// splitHead splits raw text at the first blank line.
func splitHead(text string) (head, body string, ok bool) {
	if i := strings.Index(text, "\r\n\r\n"); i >= 0 {
		return text[:i], text[i+4:], true
	}
	if i := strings.Index(text, "\n\n"); i >= 0 {
		return text[:i], text[i+2:], true
	}
	return text, "", false
}

// Parse builds a Request from buf. It never fails: a missing path, an
// unsupported content type, or malformed form pairs are reflected in the
// returned Request instead.
func Parse(buf []byte) *Request {
	text := string(bytes.ToValidUTF8(buf, []byte("�")))
	text = strings.Trim(text, "\x00")

	head, body, _ := splitHead(text)

	requestLine, headerBlock, _ := strings.Cut(head, "\n")
	requestLine = strings.TrimSuffix(requestLine, "\r")

	req := &Request{
		Header: parseHeader(headerBlock),
		Form:   map[string]string{},
	}

	tokens := strings.Fields(requestLine)
	if len(tokens) > 0 {
		req.Method = parseMethod(tokens[0])
	}
	if len(tokens) >= 2 {
		req.Path = tokens[1]
		req.HasPath = true
	} else {
		log.Debug("Malformed request line", "line", requestLine)
	}

	req.RawContentType = req.Header.Get("Content-Type")
	req.ContentType = parseContentType(req.RawContentType)

	if req.ContentType == ContentTypeForm {
		req.Form, req.Diagnostics = parseForm(body)
		for _, d := range req.Diagnostics {
			log.Debug("Skipped form field", "path", req.Path, "reason", d)
		}
	}

	return req
}

func parseHeader(block string) Header {
	header := make(Header)
	for _, line := range strings.Split(block, "\n") {
		line = strings.TrimSuffix(line, "\r")
		if line == "" {
			continue
		}
		i := strings.IndexByte(line, ':')
		if i <= 0 {
			continue
		}
		header.Add(line[:i], strings.TrimSpace(line[i+1:]))
	}
	return header
}

// parseForm decodes an application/x-www-form-urlencoded body. Pairs that do
// not contain exactly one '=', fail to unescape, or decode to invalid UTF-8
// are skipped and described in the returned diagnostics.
func parseForm(body string) (map[string]string, []string) {
	form := make(map[string]string)
	var diagnostics []string

	body = strings.TrimRight(body, "\r\n")
	if body == "" {
		return form, nil
	}

	for _, pair := range strings.Split(body, "&") {
		if pair == "" {
			continue
		}
		if strings.Count(pair, "=") != 1 {
			diagnostics = append(diagnostics, fmt.Sprintf("malformed pair %q", pair))
			continue
		}
		rawKey, rawValue, _ := strings.Cut(pair, "=")

		key, err := url.QueryUnescape(rawKey)
		if err != nil {
			diagnostics = append(diagnostics, fmt.Sprintf("undecodable key %q: %v", rawKey, err))
			continue
		}
		value, err := url.QueryUnescape(rawValue)
		if err != nil {
			diagnostics = append(diagnostics, fmt.Sprintf("undecodable value for %q: %v", key, err))
			continue
		}
		if !utf8.ValidString(key) || !utf8.ValidString(value) {
			diagnostics = append(diagnostics, fmt.Sprintf("pair %q is not valid UTF-8", pair))
			continue
		}
		form[key] = value
	}

	return form, diagnostics
}
