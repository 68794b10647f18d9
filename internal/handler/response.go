package handler

import (
	"bytes"
	"net/http"
	"strconv"
)

// Content types used by the dispatcher.
const (
	ContentTypeHTML = "text/html"
	ContentTypeJSON = "application/json"
	ContentTypeText = "text/plain"
)

// Response is a complete HTTP response ready to be serialised.
type Response struct {
	Status      int
	ContentType string // omitted from the wire when empty
	Body        []byte
}

// Bytes formats r as HTTP/1.1 text. Content-Length is the byte length of Body.
func (r Response) Bytes() []byte {
	var buf bytes.Buffer
	buf.Grow(len(r.Body) + 128)

	buf.WriteString("HTTP/1.1 ")
	buf.WriteString(strconv.Itoa(r.Status))
	buf.WriteByte(' ')
	buf.WriteString(reason(r.Status))
	buf.WriteString("\r\n")

	if r.ContentType != "" {
		buf.WriteString("Content-Type: ")
		buf.WriteString(r.ContentType)
		buf.WriteString("\r\n")
	}

	buf.WriteString("Content-Length: ")
	buf.WriteString(strconv.Itoa(len(r.Body)))
	buf.WriteString("\r\n\r\n")
	buf.Write(r.Body)

	return buf.Bytes()
}

func reason(status int) string {
	if text := http.StatusText(status); text != "" {
		return text
	}
	return "Unknown"
}

func respond(contentType string, body []byte) Response {
	return Response{Status: http.StatusOK, ContentType: contentType, Body: body}
}

func empty() Response {
	return Response{Status: http.StatusOK}
}

func plain(status int, msg string) Response {
	return Response{Status: status, ContentType: ContentTypeText, Body: []byte(msg + "\n")}
}
