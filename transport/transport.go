/*
	remote-flasher
	Copyright (c) 2026 OpenBlock Community.  All right reserved.

	This program is free software: you can redistribute it and/or modify
	it under the terms of the GNU Affero General Public License as published
	by the Free Software Foundation, either version 3 of the License, or
	(at your option) any later version.

	This program is distributed in the hope that it will be useful,
	but WITHOUT ANY WARRANTY; without even the implied warranty of
	MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
	GNU Affero General Public License for more details.

	You should have received a copy of the GNU Affero General Public License
	along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/

// Package transport moves requests between the client and the remote
// flashing service. Two implementations share the same contract: Direct
// talks HTTP from this process, Curl spawns the curl binary. Failover
// combines them.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Transport performs a single request/response exchange.
type Transport interface {
	Do(ctx context.Context, req *Request) (*Response, error)
}

// Streamer performs a long-lived request whose body is consumed while it
// is still being produced.
type Streamer interface {
	Stream(ctx context.Context, req *Request) (*Stream, error)
}

// Field is a plain multipart form value.
type Field struct {
	Name  string
	Value string
}

// Form is a multipart body carrying one file and any number of values.
type Form struct {
	FileField string
	FilePath  string
	Fields    []Field
}

// Request describes a call against the service base URL. JSON and Form are
// mutually exclusive.
type Request struct {
	Method  string
	Path    string
	Query   url.Values
	Accept  string
	Headers map[string]string
	JSON    interface{}
	Form    *Form
	// Timeout overrides the transport total timeout when positive.
	Timeout time.Duration
}

func (r *Request) op() string {
	return r.Method + " " + r.Path
}

func (r *Request) accept() string {
	if r.Accept == "" {
		return "application/json"
	}
	return r.Accept
}

func (r *Request) timeout(def time.Duration) time.Duration {
	if r.Timeout > 0 {
		return r.Timeout
	}
	return def
}

// Response is the raw outcome of a request that reached the server.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// OK reports whether the status code is in the 2xx range.
func (r *Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Payload decodes the body as JSON. A body that is not valid JSON is
// returned as trimmed text instead.
func (r *Response) Payload() interface{} {
	var v interface{}
	if err := json.Unmarshal(r.Body, &v); err == nil {
		return v
	}
	return strings.TrimSpace(string(r.Body))
}

// Timeouts groups the deadlines applied by the transports.
type Timeouts struct {
	Connect time.Duration
	Total   time.Duration
	Upload  time.Duration
}

// DefaultTimeouts returns 10s connect, 30s for simple calls and 120s for
// uploads and streams.
func DefaultTimeouts() Timeouts {
	return Timeouts{
		Connect: 10 * time.Second,
		Total:   30 * time.Second,
		Upload:  120 * time.Second,
	}
}

// Config is shared by every transport implementation.
type Config struct {
	BaseURL   string
	Timeouts  Timeouts
	UserAgent string
	Logger    logrus.FieldLogger
}

func (c Config) normalized() Config {
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	def := DefaultTimeouts()
	if c.Timeouts.Connect <= 0 {
		c.Timeouts.Connect = def.Connect
	}
	if c.Timeouts.Total <= 0 {
		c.Timeouts.Total = def.Total
	}
	if c.Timeouts.Upload <= 0 {
		c.Timeouts.Upload = def.Upload
	}
	if c.UserAgent == "" {
		c.UserAgent = "remote-flasher"
	}
	if c.Logger == nil {
		c.Logger = logrus.StandardLogger()
	}
	return c
}

func (c Config) url(req *Request) string {
	u := c.BaseURL + req.Path
	if len(req.Query) > 0 {
		u += "?" + req.Query.Encode()
	}
	return u
}

// Exit is the terminal status of a streamed transfer.
type Exit struct {
	Code   int
	Stderr string
}

// Stream is a finite, non-restartable byte stream. Read it to EOF, then call
// Wait to collect the exit status.
type Stream struct {
	r    io.Reader
	wait func() (Exit, error)

	once sync.Once
	exit Exit
	err  error
}

// NewStream wraps a reader and the function that reaps its producer.
func NewStream(r io.Reader, wait func() (Exit, error)) *Stream {
	return &Stream{r: r, wait: wait}
}

func (s *Stream) Read(p []byte) (int, error) {
	return s.r.Read(p)
}

// Wait drains what is left of the stream and returns the exit status of the
// producer. It is safe to call more than once.
func (s *Stream) Wait() (Exit, error) {
	s.once.Do(func() {
		_, _ = io.Copy(io.Discard, s.r)
		s.exit, s.err = s.wait()
	})
	return s.exit, s.err
}

func encodeJSON(v interface{}) ([]byte, error) {
	buf := new(bytes.Buffer)
	if err := json.NewEncoder(buf).Encode(v); err != nil {
		return nil, fmt.Errorf("encoding request body: %w", err)
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
