package httpserver

import (
	"fmt"
	"strings"
)

// Request is the part of an HTTP request this server understands: the
// request line. Headers and body are never read.
type Request struct {
	Method      string
	Path        string
	QueryString string
}

// ParseRequestLine splits "METHOD PATH[?QUERY] [ignored...]" into a Request.
// Anything after the second whitespace-separated field is ignored.
func ParseRequestLine(line string) (Request, error) {
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return Request{}, fmt.Errorf("%w: %q", ErrMalformedRequest, summarize(line))
	}
	path, query, _ := strings.Cut(fields[1], "?")
	return Request{
		Method:      fields[0],
		Path:        path,
		QueryString: query,
	}, nil
}

// RequestLine renders r the way a client would send it, without the version.
func (r Request) RequestLine() string {
	if r.QueryString == "" {
		return r.Method + " " + r.Path
	}
	return r.Method + " " + r.Path + "?" + r.QueryString
}

const maxSummary = 64

func summarize(line string) string {
	line = strings.TrimSpace(line)
	if len(line) <= maxSummary {
		return line
	}
	return line[:maxSummary-3] + "..."
}
