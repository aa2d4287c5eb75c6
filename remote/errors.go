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
	"errors"
	"fmt"
	"net/http"

	"github.com/openblockcc/remote-flasher/transport"
)

// Kind is the stable, machine readable reason of a failure.
type Kind int

const (
	// ConnectionFailed means the service could not be reached
	ConnectionFailed Kind = iota
	// Timeout means the service did not answer in time
	Timeout
	// DNSFailure means the service host name could not be resolved
	DNSFailure
	// InvalidResponse means the service answered with something that is not HTTP
	InvalidResponse
	// ServerError means the service answered with a non-2xx status
	ServerError
	// ProtocolError means the answer lacked the expected fields or was ambiguous
	ProtocolError
	// FileNotFound means the local firmware file is missing
	FileNotFound
	// BuildFailed means the build producer could not make a firmware
	BuildFailed
	// Aborted means the operation was canceled by the caller
	Aborted
	// FlashFailed means the service reported that flashing failed
	FlashFailed
)

var kindNames = map[Kind]string{
	ConnectionFailed: "ConnectionFailed",
	Timeout:          "Timeout",
	DNSFailure:       "DnsFailure",
	InvalidResponse:  "InvalidResponse",
	ServerError:      "ServerError",
	ProtocolError:    "ProtocolError",
	FileNotFound:     "FileNotFound",
	BuildFailed:      "BuildFailed",
	Aborted:          "Aborted",
	FlashFailed:      "FlashFailed",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// MarshalText implements encoding.TextMarshaler
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// IsNetwork reports whether the kind is about reaching the service.
func (k Kind) IsNetwork() bool {
	switch k {
	case ConnectionFailed, Timeout, DNSFailure, InvalidResponse:
		return true
	}
	return false
}

// Error is the failure outcome of every client operation. Message is
// suitable for display as it is.
type Error struct {
	Kind    Kind
	Message string
	Detail  string
	// Status is the HTTP status for ServerError
	Status int
	// Check names the failed sub-check of a composite operation
	Check string
	Err   error
}

func (e *Error) Error() string {
	if e.Detail == "" {
		return e.Message
	}
	return e.Message + ": " + e.Detail
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError builds an Error without an underlying cause.
func NewError(kind Kind, message, detail string) *Error {
	return &Error{Kind: kind, Message: message, Detail: detail}
}

// KindOf returns the Kind of err if it is, or wraps, an *Error.
func KindOf(err error) (Kind, bool) {
	var rerr *Error
	if errors.As(err, &rerr) {
		return rerr.Kind, true
	}
	return 0, false
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}

func transportKind(k transport.Kind) Kind {
	switch k {
	case transport.Timeout:
		return Timeout
	case transport.DNSFailure:
		return DNSFailure
	case transport.MalformedResponse:
		return InvalidResponse
	default:
		return ConnectionFailed
	}
}

// fromTransport normalizes the error returned by a transport.
func fromTransport(message string, err error) *Error {
	var terr *transport.Error
	switch {
	case errors.As(err, &terr):
		return &Error{Kind: transportKind(terr.Kind), Message: message, Detail: terr.Error(), Err: err}
	case errors.Is(err, context.Canceled):
		return &Error{Kind: Aborted, Message: message, Detail: "operation canceled", Err: err}
	case errors.Is(err, context.DeadlineExceeded):
		return &Error{Kind: Timeout, Message: message, Detail: err.Error(), Err: err}
	}
	return &Error{Kind: ConnectionFailed, Message: message, Detail: err.Error(), Err: err}
}

// fromStatus builds a ServerError out of a non-2xx response.
func fromStatus(message string, res *transport.Response) *Error {
	return &Error{
		Kind:    ServerError,
		Message: message,
		Detail:  errorDetail(res),
		Status:  res.StatusCode,
	}
}

func errorDetail(res *transport.Response) string {
	switch p := res.Payload().(type) {
	case map[string]interface{}:
		for _, key := range []string{"error", "message", "detail"} {
			if s, ok := p[key].(string); ok && s != "" {
				return fmt.Sprintf("%d %s", res.StatusCode, s)
			}
		}
	case string:
		if p != "" {
			return fmt.Sprintf("%d %s", res.StatusCode, p)
		}
	}
	return fmt.Sprintf("%d %s", res.StatusCode, http.StatusText(res.StatusCode))
}
