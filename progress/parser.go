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

package progress

import (
	"bytes"
	"encoding/json"
	"strings"
)

const dataPrefix = "data:"

// Parser turns the raw bytes of a progress stream into events. It is an
// io.Writer so the stream can simply be copied into it; bytes are buffered
// until a full line is available, so records split across chunks are
// reassembled. Lines that still do not decode are dropped.
//
// A Parser is not safe for concurrent use.
type Parser struct {
	sink     Sink
	buf      []byte
	events   []Event
	dropped  int
	finished bool
}

// NewParser creates a Parser relaying every decoded event to sink.
func NewParser(sink Sink) *Parser {
	if sink == nil {
		sink = Discard
	}
	return &Parser{sink: sink}
}

// Write implements io.Writer. It never fails.
func (p *Parser) Write(data []byte) (int, error) {
	p.buf = append(p.buf, data...)
	for {
		i := bytes.IndexByte(p.buf, '\n')
		if i < 0 {
			break
		}
		p.parseLine(string(p.buf[:i]))
		p.buf = p.buf[i+1:]
	}
	return len(data), nil
}

// Flush parses whatever is left in the buffer as a last line. Call it once
// the stream has ended.
func (p *Parser) Flush() {
	if p.finished {
		return
	}
	p.finished = true
	if len(p.buf) > 0 {
		p.parseLine(string(p.buf))
		p.buf = nil
	}
}

func (p *Parser) parseLine(line string) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, dataPrefix) {
		// blank separators, comments and other SSE fields
		return
	}
	payload := strings.TrimSpace(strings.TrimPrefix(line, dataPrefix))

	var record struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal([]byte(payload), &record); err != nil {
		p.dropped++
		return
	}
	e := Event{Type: ParseType(record.Type), Message: record.Message}
	p.events = append(p.events, e)
	p.sink.Send(e)
}

// Events returns the events decoded so far.
func (p *Parser) Events() []Event {
	return append([]Event(nil), p.events...)
}

// Dropped returns the number of data lines that could not be decoded.
func (p *Parser) Dropped() int {
	return p.dropped
}
