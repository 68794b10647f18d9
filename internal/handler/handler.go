// ============================================================================
// Beaver-Chat Dispatcher
// ============================================================================
//
// Package: internal/handler
// File: handler.go
// Function: Maps a parsed request to a route, runs it against the chat room
// and the static file table, and produces a Response.
//
// Routing Table (method + exact path, case-sensitive):
//   GET  /            -> login.html
//   GET  /users       -> {"online":[...],"offline":[...]}
//   GET  /messages    -> [{"timestamp":..,"sender":..,"content":..}, ...]
//   POST /messages    -> append message (form: sender, content)
//   POST /chat        -> user enters (form: username), chat.html
//   POST /chat/exit   -> user leaves (form: username)
//   anything else     -> static file by name, or 404.html
//
// Error Handling:
//   Route functions return (Response, error). Client-facing errors are
//   mapped to 4xx responses by errorResponse; a panic inside a route is
//   recovered and answered with 500. Nothing here can take down a worker.
//
// ============================================================================

package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/ChuLiYu/beaver-chat/internal/chat"
	"github.com/ChuLiYu/beaver-chat/internal/request"
	"github.com/ChuLiYu/beaver-chat/internal/static"
	"github.com/ChuLiYu/beaver-chat/pkg/types"
)

var log = slog.Default()

var (
	// ErrMissingField means a required form field was absent or blank.
	ErrMissingField = errors.New("missing required form field")
	// ErrUnsupportedMediaType means a form route got a body it cannot decode.
	ErrUnsupportedMediaType = errors.New("unsupported content type")
	// ErrRateLimited means the sender exceeded the configured message rate.
	ErrRateLimited = errors.New("message rate exceeded")
)

// Metric route labels for requests that do not hit a named route.
const (
	routeStatic   = "static"
	routeNotFound = "not_found"
	routeRejected = "rejected"
)

// Recorder receives per-request events. The metrics collector implements it.
type Recorder interface {
	RequestHandled(route string, status int, duration time.Duration)
	MessagePosted()
	UsersChanged(online, offline int)
}

type nopRecorder struct{}

func (nopRecorder) RequestHandled(string, int, time.Duration) {}
func (nopRecorder) MessagePosted()                            {}
func (nopRecorder) UsersChanged(int, int)                     {}

type routeFunc func(h *Handler, req *request.Request) (Response, error)

var routes = map[string]routeFunc{
	"GET /":           (*Handler).getRoot,
	"GET /users":      (*Handler).getUsers,
	"GET /messages":   (*Handler).getMessages,
	"POST /messages":  (*Handler).postMessage,
	"POST /chat":      (*Handler).enterChat,
	"POST /chat/exit": (*Handler).exitChat,
}

// Handler dispatches requests. It is safe for concurrent use.
type Handler struct {
	room     *chat.Room
	files    *static.Table
	now      func() time.Time
	limiter  *senderLimiter
	recorder Recorder
}

// Option configures a Handler.
type Option func(*Handler)

// WithClock replaces time.Now as the message timestamp source.
func WithClock(now func() time.Time) Option {
	return func(h *Handler) {
		if now != nil {
			h.now = now
		}
	}
}

// WithMessageRate limits each sender to perSecond messages with the given
// burst. A non-positive rate disables limiting.
func WithMessageRate(perSecond float64, burst int) Option {
	return func(h *Handler) {
		if perSecond > 0 {
			h.limiter = newSenderLimiter(perSecond, burst)
		} else {
			h.limiter = nil
		}
	}
}

// WithRecorder attaches a metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(h *Handler) {
		if r != nil {
			h.recorder = r
		}
	}
}

// New returns a Handler serving room and files.
func New(room *chat.Room, files *static.Table, opts ...Option) *Handler {
	h := &Handler{
		room:     room,
		files:    files,
		now:      time.Now,
		recorder: nopRecorder{},
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Handle produces the response for req.
func (h *Handler) Handle(req *request.Request) (resp Response) {
	start := time.Now()
	label := routeStatic

	defer func() {
		if r := recover(); r != nil {
			log.Error("Recovered from panic in handler",
				"route", req.Route(),
				"panic", r,
				"stack", string(debug.Stack()),
			)
			resp = plain(http.StatusInternalServerError, "internal server error")
		}
		h.recorder.RequestHandled(label, resp.Status, time.Since(start))
	}()

	route, found := routes[req.Route()]
	if !found {
		resp = h.serveStatic(req)
		if resp.Status == http.StatusNotFound {
			label = routeNotFound
		}
		return resp
	}

	label = req.Route()
	resp, err := route(h, req)
	if err != nil {
		log.Warn("Rejected request", "route", label, "error", err)
		return errorResponse(err)
	}
	return resp
}

// Reject answers a request that could not be read or parsed.
func (h *Handler) Reject(err error) Response {
	resp := plain(http.StatusBadRequest, "bad request")
	if errors.Is(err, request.ErrRequestTooLarge) {
		resp = errorResponse(err)
	}
	h.recorder.RequestHandled(routeRejected, resp.Status, 0)
	return resp
}

func errorResponse(err error) Response {
	switch {
	case errors.Is(err, request.ErrRequestTooLarge):
		return plain(http.StatusRequestEntityTooLarge, "request too large")
	case errors.Is(err, ErrMissingField):
		return plain(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrUnsupportedMediaType):
		return plain(http.StatusUnsupportedMediaType, err.Error())
	case errors.Is(err, ErrRateLimited):
		return plain(http.StatusTooManyRequests, err.Error())
	default:
		return plain(http.StatusInternalServerError, "internal server error")
	}
}

// formField returns the trimmed value of a required form field.
func formField(req *request.Request, name string) (string, error) {
	if req.ContentType == request.ContentTypeUnsupported {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedMediaType, req.RawContentType)
	}
	value, ok := req.FormValue(name)
	value = strings.TrimSpace(value)
	if !ok || value == "" {
		return "", fmt.Errorf("%w: %s", ErrMissingField, name)
	}
	return value, nil
}

func (h *Handler) page(name string) []byte {
	content, ok := h.files.Get(name)
	if !ok {
		// Required pages are checked at startup; reaching this is a wiring bug.
		panic(fmt.Sprintf("static page %s not loaded", name))
	}
	return []byte(content)
}

func (h *Handler) getRoot(_ *request.Request) (Response, error) {
	return respond(ContentTypeHTML, h.page(static.LoginPage)), nil
}

func (h *Handler) getUsers(_ *request.Request) (Response, error) {
	body, err := json.Marshal(h.room.Users())
	if err != nil {
		return Response{}, err
	}
	return respond(ContentTypeJSON, body), nil
}

func (h *Handler) getMessages(_ *request.Request) (Response, error) {
	body, err := json.Marshal(h.room.Messages())
	if err != nil {
		return Response{}, err
	}
	return respond(ContentTypeJSON, body), nil
}

func (h *Handler) postMessage(req *request.Request) (Response, error) {
	sender, err := formField(req, "sender")
	if err != nil {
		return Response{}, err
	}
	content, err := formField(req, "content")
	if err != nil {
		return Response{}, err
	}

	if h.limiter != nil && !h.limiter.allow(sender, h.now()) {
		return Response{}, fmt.Errorf("%w: %s", ErrRateLimited, sender)
	}

	message := types.Message{
		Timestamp: uint64(h.now().UnixMilli()),
		Sender:    sender,
		Content:   content,
	}
	h.room.AddMessage(message)
	h.recorder.MessagePosted()

	log.Info("Message posted", "sender", message.Sender, "timestamp", message.Timestamp)
	return empty(), nil
}

func (h *Handler) enterChat(req *request.Request) (Response, error) {
	username, err := formField(req, "username")
	if err != nil {
		return Response{}, err
	}

	h.room.AddUser(username)
	h.reportUsers()

	log.Info("User entered chat room", "user", username)
	return respond(ContentTypeHTML, h.page(static.ChatPage)), nil
}

func (h *Handler) exitChat(req *request.Request) (Response, error) {
	username, err := formField(req, "username")
	if err != nil {
		return Response{}, err
	}

	h.room.RemoveUser(username)
	h.reportUsers()

	log.Info("User exited chat room", "user", username)
	return empty(), nil
}

func (h *Handler) reportUsers() {
	stats := h.room.Stats()
	h.recorder.UsersChanged(stats.Online, stats.Offline)
}

// serveStatic serves the file named by the path without its leading slash,
// or the not-found page.
func (h *Handler) serveStatic(req *request.Request) Response {
	key := strings.TrimPrefix(req.Path, "/")
	if key != "" {
		if content, found := h.files.Get(key); found {
			return Response{Status: http.StatusOK, Body: []byte(content)}
		}
	}
	return Response{
		Status:      http.StatusNotFound,
		ContentType: ContentTypeHTML,
		Body:        h.page(static.NotFoundPage),
	}
}
