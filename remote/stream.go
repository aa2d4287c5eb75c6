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

package remote

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/openblockcc/remote-flasher/progress"
	"github.com/openblockcc/remote-flasher/transport"
)

// curl exits with 22 when --fail-with-body sees an HTTP error status
const curlHTTPError = 22

func (c *Client) exitError(message string, exit transport.Exit) *Error {
	detail := fmt.Sprintf("curl exited with code %d", exit.Code)
	if stderr := strings.TrimSpace(exit.Stderr); stderr != "" {
		detail += ": " + stderr
	}
	kind := transportKind(transport.ExitKind(exit.Code))
	if exit.Code == curlHTTPError {
		kind = ServerError
	}
	return &Error{Kind: kind, Message: message, Detail: detail}
}

func (c *Client) stream(ctx context.Context, path string, opts Options, withQuery bool) (*transport.Stream, error) {
	req := &transport.Request{
		Method:  http.MethodPost,
		Path:    "/flash/stream",
		Accept:  "text/plain",
		Form:    c.form(path, opts),
		Timeout: c.endpoint.Timeouts.Upload,
	}
	if withQuery {
		req.Query = opts.Query()
	}
	return c.streamer.Stream(ctx, req)
}

// FlashFileStream uploads the firmware to /flash/stream and copies the
// answer to w verbatim while it arrives. The outcome only depends on the
// exit code of the transfer.
func (c *Client) FlashFileStream(ctx context.Context, path string, opts Options, w io.Writer) (*Result, error) {
	if err := checkFile(path); err != nil {
		return nil, err
	}
	log := c.logger.WithField("firmware", path)
	log.Info("Starting stream flash")

	st, err := c.stream(ctx, path, opts, false)
	if err != nil {
		return nil, fromTransport(msgStream, err)
	}
	if _, err := io.Copy(w, st); err != nil {
		log.WithError(err).Warn("Could not relay stream output")
	}
	exit, err := st.Wait()
	if err != nil {
		return nil, fromTransport(msgStream, err)
	}
	if exit.Code != 0 {
		return nil, c.exitError(msgStream, exit)
	}
	log.Info("Stream flash completed")
	return &Result{Message: "Stream flash completed"}, nil
}

// PerformOperation uploads the firmware to /flash/stream, relays every
// progress event to sink as soon as it is decoded and judges the outcome
// from the events. A clean exit of the transfer alone is not a success.
func (c *Client) PerformOperation(ctx context.Context, path string, opts Options, sink progress.Sink) (*Result, error) {
	if err := checkFile(path); err != nil {
		return nil, err
	}
	log := c.logger.WithField("firmware", path)
	log.Info("Starting flash operation")

	st, err := c.stream(ctx, path, opts, true)
	if err != nil {
		return nil, fromTransport(msgOperation, err)
	}
	parser := progress.NewParser(sink)
	// the parser never fails, a read error just ends the stream
	_, _ = io.Copy(parser, st)
	parser.Flush()
	exit, err := st.Wait()
	if err != nil {
		return nil, fromTransport(msgOperation, err)
	}

	events := parser.Events()
	if n := parser.Dropped(); n > 0 {
		log.Debugf("Dropped %d undecodable progress lines", n)
	}
	verdict := c.phrases.Judge(events, exit.Code)
	log.WithField("events", len(events)).WithField("exit", exit.Code).Infof("Flash operation %s", verdict.Status)

	switch verdict.Status {
	case progress.Succeeded:
		return &Result{Message: verdict.Message, Payload: events}, nil
	case progress.Failed:
		return nil, &Error{Kind: FlashFailed, Message: msgOperation, Detail: verdict.Message}
	case progress.Ambiguous:
		return nil, &Error{Kind: ProtocolError, Message: msgOperation, Detail: verdict.Message}
	default:
		return nil, c.exitError(msgOperation, exit)
	}
}
