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

package transport

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/textproto"
	"os/exec"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/arduino/arduino-cli/executils"
)

// Curl runs every request through an external curl process. Each call owns
// exactly one child process, which is killed when the context is canceled.
type Curl struct {
	cfg    Config
	binary string
}

// NewCurl creates a Curl transport. binary defaults to "curl" from PATH.
func NewCurl(cfg Config, binary string) *Curl {
	if binary == "" {
		binary = "curl"
	}
	return &Curl{cfg: cfg.normalized(), binary: binary}
}

// Do performs the request and parses the response headers printed by curl.
func (c *Curl) Do(ctx context.Context, req *Request) (*Response, error) {
	args, err := c.args(req, req.timeout(c.cfg.Timeouts.Total), "-s", "-S", "-i")
	if err != nil {
		return nil, err
	}
	log := c.cfg.Logger.WithField("method", req.Method).WithField("path", req.Path)
	log.Debugf("Running %s", strings.Join(args, " "))

	proc, err := executils.NewProcess(nil, args...)
	if err != nil {
		return nil, &Error{Kind: ConnectionFailed, Op: req.op(), Err: err}
	}
	stdout := new(bytes.Buffer)
	stderr := new(bytes.Buffer)
	proc.RedirectStdoutTo(stdout)
	proc.RedirectStderrTo(stderr)

	if err := proc.Start(); err != nil {
		return nil, &Error{Kind: ConnectionFailed, Op: req.op(), Err: fmt.Errorf("starting %s: %w", c.binary, err)}
	}
	stop := killOnCancel(ctx, proc)
	err = proc.Wait()
	stop()
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if err != nil {
		code, ok := exitCode(err)
		if !ok {
			return nil, &Error{Kind: ConnectionFailed, Op: req.op(), Err: err}
		}
		return nil, &Error{Kind: curlKind(code), Op: req.op(), Err: curlFailure(code, stderr.String())}
	}

	res, err := parseResponse(stdout.Bytes())
	if err != nil {
		return nil, &Error{Kind: MalformedResponse, Op: req.op(), Err: err}
	}
	log.WithField("status", res.StatusCode).Debug("Response received")
	return res, nil
}

// Stream starts the request and returns its body as it arrives. curl runs
// unbuffered so every line reaches the caller as soon as the server
// flushes it.
func (c *Curl) Stream(ctx context.Context, req *Request) (*Stream, error) {
	args, err := c.args(req, req.timeout(c.cfg.Timeouts.Upload), "-s", "-S", "-N", "--fail-with-body")
	if err != nil {
		return nil, err
	}
	c.cfg.Logger.WithField("method", req.Method).WithField("path", req.Path).
		Debugf("Streaming with %s", strings.Join(args, " "))

	proc, err := executils.NewProcess(nil, args...)
	if err != nil {
		return nil, &Error{Kind: ConnectionFailed, Op: req.op(), Err: err}
	}
	stdout, err := proc.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("opening curl output: %w", err)
	}
	stderr := new(bytes.Buffer)
	proc.RedirectStderrTo(stderr)
	if err := proc.Start(); err != nil {
		return nil, &Error{Kind: ConnectionFailed, Op: req.op(), Err: fmt.Errorf("starting %s: %w", c.binary, err)}
	}
	stop := killOnCancel(ctx, proc)

	wait := func() (Exit, error) {
		err := proc.Wait()
		stop()
		if ctx.Err() != nil {
			return Exit{Code: -1, Stderr: stderr.String()}, ctx.Err()
		}
		if err == nil {
			return Exit{Stderr: stderr.String()}, nil
		}
		if code, ok := exitCode(err); ok {
			return Exit{Code: code, Stderr: stderr.String()}, nil
		}
		return Exit{Code: -1, Stderr: stderr.String()}, err
	}
	return NewStream(stdout, wait), nil
}

// ExitKind classifies a non-zero curl exit code.
func ExitKind(code int) Kind {
	return curlKind(code)
}

func (c *Curl) args(req *Request, timeout time.Duration, flags ...string) ([]string, error) {
	args := []string{
		c.binary,
		"-X", req.Method,
		"-H", "User-Agent: " + c.cfg.UserAgent,
		"-H", "Accept: " + req.accept(),
		"--connect-timeout", seconds(c.cfg.Timeouts.Connect),
		"--max-time", seconds(timeout),
	}
	args = append(args, flags...)

	keys := make([]string, 0, len(req.Headers))
	for k := range req.Headers {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		args = append(args, "-H", k+": "+req.Headers[k])
	}

	switch {
	case req.Form != nil:
		args = append(args, "-F", req.Form.FileField+"=@"+req.Form.FilePath)
		for _, f := range req.Form.Fields {
			// --form-string never interprets a leading @ or <
			args = append(args, "--form-string", f.Name+"="+f.Value)
		}
	case req.JSON != nil:
		data, err := encodeJSON(req.JSON)
		if err != nil {
			return nil, err
		}
		args = append(args, "-H", "Content-Type: application/json", "--data-binary", string(data))
	}

	return append(args, c.cfg.url(req)), nil
}

func seconds(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'f', -1, 64)
}

// killOnCancel terminates the process if ctx ends before the returned stop
// function is called.
func killOnCancel(ctx context.Context, proc *executils.Process) (stop func()) {
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			_ = proc.Kill()
		case <-done:
		}
	}()
	stopped := false
	return func() {
		if !stopped {
			stopped = true
			close(done)
		}
	}
}

func exitCode(err error) (int, bool) {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode(), true
	}
	return 0, false
}

func curlFailure(code int, stderr string) error {
	stderr = strings.TrimSpace(stderr)
	if stderr == "" {
		return fmt.Errorf("curl failed with code %d", code)
	}
	return fmt.Errorf("curl failed with code %d: %s", code, stderr)
}

// parseResponse splits the output of `curl -i` into status, headers and
// body. Interim responses such as "100 Continue" come first and are
// superseded by the final one.
func parseResponse(raw []byte) (*Response, error) {
	br := bufio.NewReader(bytes.NewReader(raw))
	tp := textproto.NewReader(br)
	res := &Response{}
	for {
		peek, _ := br.Peek(5)
		if string(peek) != "HTTP/" {
			break
		}
		line, err := tp.ReadLine()
		if err != nil {
			return nil, fmt.Errorf("reading status line: %w", err)
		}
		code, err := parseStatusLine(line)
		if err != nil {
			return nil, err
		}
		hdr, err := tp.ReadMIMEHeader()
		if err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("reading headers: %w", err)
		}
		res.StatusCode = code
		res.Header = http.Header(hdr)
	}
	if res.StatusCode == 0 {
		return nil, errors.New("missing HTTP status line")
	}
	body, err := io.ReadAll(br)
	if err != nil {
		return nil, err
	}
	res.Body = body
	return res, nil
}

func parseStatusLine(line string) (int, error) {
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return 0, fmt.Errorf("invalid status line %q", line)
	}
	code, err := strconv.Atoi(fields[1])
	if err != nil {
		return 0, fmt.Errorf("invalid status code in %q", line)
	}
	return code, nil
}
