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
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
)

// Kind classifies a transport failure.
type Kind int

const (
	// ConnectionFailed means no route to host or connection refused
	ConnectionFailed Kind = iota
	// Timeout means the connect or total deadline expired
	Timeout
	// DNSFailure means the service host name could not be resolved
	DNSFailure
	// MalformedResponse means the server answered with something that is not HTTP
	MalformedResponse
)

func (k Kind) String() string {
	switch k {
	case ConnectionFailed:
		return "ConnectionFailed"
	case Timeout:
		return "Timeout"
	case DNSFailure:
		return "DnsFailure"
	case MalformedResponse:
		return "MalformedResponse"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Error is a transport-level failure. When a fallback attempt was made,
// Fallback holds its error too.
type Error struct {
	Kind     Kind
	Op       string
	Err      error
	Fallback error
}

func (e *Error) Error() string {
	if e.Fallback != nil {
		return fmt.Sprintf("%s: %s (fallback: %s)", e.Op, e.Err, e.Fallback)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// classify maps a net/http client error to a Kind.
func classify(err error) Kind {
	if errors.Is(err, context.DeadlineExceeded) {
		return Timeout
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		if dnsErr.IsTimeout {
			return Timeout
		}
		return DNSFailure
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return Timeout
	}
	if errors.Is(err, io.ErrUnexpectedEOF) || strings.Contains(err.Error(), "malformed HTTP") {
		return MalformedResponse
	}
	return ConnectionFailed
}

// curlKind maps a curl exit code to a Kind.
// See https://curl.se/libcurl/c/libcurl-errors.html
func curlKind(code int) Kind {
	switch code {
	case 5, 6:
		return DNSFailure
	case 28:
		return Timeout
	case 8, 52:
		return MalformedResponse
	default:
		return ConnectionFailed
	}
}
