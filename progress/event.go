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

// Package progress decodes the progress stream sent by the remote flashing
// service and relays it to whoever is watching the flash.
package progress

import (
	"fmt"
	"io"
	"strings"
	"sync"
)

// Type is the category of a progress event.
type Type int

const (
	// Info is a status message from the service
	Info Type = iota
	// Output is a line printed by the programmer tool
	Output
	// Success marks a positive outcome reported by the service
	Success
	// Error marks a failure reported by the service
	Error
)

// ParseType maps the "type" field of a stream record. Unknown values are
// treated as Output.
func ParseType(s string) Type {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "info":
		return Info
	case "success":
		return Success
	case "error":
		return Error
	default:
		return Output
	}
}

func (t Type) String() string {
	switch t {
	case Info:
		return "info"
	case Output:
		return "output"
	case Success:
		return "success"
	case Error:
		return "error"
	}
	return fmt.Sprintf("Type(%d)", int(t))
}

// MarshalText implements encoding.TextMarshaler
func (t Type) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// Event is a single progress record.
type Event struct {
	Type    Type   `json:"type"`
	Message string `json:"message"`
}

// Infof builds an Info event.
func Infof(format string, args ...interface{}) Event {
	return Event{Type: Info, Message: fmt.Sprintf(format, args...)}
}

// Errorf builds an Error event.
func Errorf(format string, args ...interface{}) Event {
	return Event{Type: Error, Message: fmt.Sprintf(format, args...)}
}

// Sink receives progress events in the order they are produced.
type Sink interface {
	Send(e Event)
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(e Event)

// Send calls f(e).
func (f SinkFunc) Send(e Event) {
	f(e)
}

// Discard is a Sink that drops every event.
var Discard Sink = SinkFunc(func(Event) {})

// LineSink writes every event to w as one formatted line.
func LineSink(w io.Writer) Sink {
	var mu sync.Mutex
	return SinkFunc(func(e Event) {
		mu.Lock()
		defer mu.Unlock()
		fmt.Fprintln(w, Format(e))
	})
}

// Recorder is a Sink that keeps every event. It is useful to collect a
// transcript of a session.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// Send implements Sink.
func (r *Recorder) Send(e Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

// Events returns a copy of the events received so far.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Messages returns the text of the events received so far.
func (r *Recorder) Messages() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	res := make([]string, len(r.events))
	for i, e := range r.events {
		res[i] = e.Message
	}
	return res
}
