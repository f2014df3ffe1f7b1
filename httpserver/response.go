package httpserver

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Header is a single response header line.
type Header struct {
	Name  string
	Value string
}

// Headers is an ordered header list; wire order follows slice order.
type Headers []Header

// Get returns the first value for name, compared case-insensitively.
func (h Headers) Get(name string) string {
	for _, kv := range h {
		if strings.EqualFold(kv.Name, name) {
			return kv.Value
		}
	}
	return ""
}

// Set replaces the first header called name in place, or appends it.
func (h Headers) Set(name, value string) Headers {
	for i, kv := range h {
		if strings.EqualFold(kv.Name, name) {
			h[i].Value = value
			return h
		}
	}
	return append(h, Header{Name: name, Value: value})
}

// Add appends a header without checking for duplicates.
func (h Headers) Add(name, value string) Headers {
	return append(h, Header{Name: name, Value: value})
}

// Response is what a Handler returns. Body chunks are written verbatim:
// []byte and string as-is, anything else through fmt.Fprint.
type Response struct {
	Status  int
	Headers Headers
	Body    []any
}

// Text builds a text/plain response carrying a Content-Length.
func Text(status int, body string) Response {
	return Response{
		Status: status,
		Headers: Headers{
			{Name: "Content-Type", Value: "text/plain"},
			{Name: "Content-Length", Value: strconv.Itoa(len(body))},
		},
		Body: []any{body},
	}
}

func internalServerError() Response {
	return Response{
		Status:  500,
		Headers: Headers{{Name: "Content-Type", Value: "text/plain"}},
		Body:    []any{"Internal Server Error"},
	}
}

// WriteResponse serializes resp. No framing headers are added; callers that
// need Content-Length must supply it.
func WriteResponse(w io.Writer, resp Response) error {
	if err := resp.validate(); err != nil {
		return err
	}
	bw := bufio.NewWriter(w)
	if _, err := fmt.Fprintf(bw, "HTTP/1.1 %d\r\n", resp.Status); err != nil {
		return err
	}
	for _, h := range resp.Headers {
		if _, err := fmt.Fprintf(bw, "%s: %s\r\n", h.Name, h.Value); err != nil {
			return err
		}
	}
	if _, err := bw.WriteString("\r\n"); err != nil {
		return err
	}
	for _, chunk := range resp.Body {
		if err := writeChunk(bw, chunk); err != nil {
			return err
		}
	}
	return bw.Flush()
}

func writeChunk(w *bufio.Writer, chunk any) error {
	var err error
	switch c := chunk.(type) {
	case nil:
	case []byte:
		_, err = w.Write(c)
	case string:
		_, err = w.WriteString(c)
	default:
		_, err = fmt.Fprint(w, c)
	}
	return err
}

// validate rejects status codes outside 100-999 and CR/LF in headers so a
// handler cannot split the response.
func (r Response) validate() error {
	if r.Status < 100 || r.Status > 999 {
		return fmt.Errorf("invalid status code %d", r.Status)
	}
	for _, h := range r.Headers {
		if h.Name == "" || strings.ContainsAny(h.Name, "\r\n: ") {
			return fmt.Errorf("invalid header name %q", h.Name)
		}
		if strings.ContainsAny(h.Value, "\r\n") {
			return fmt.Errorf("invalid value for header %s", h.Name)
		}
	}
	return nil
}
