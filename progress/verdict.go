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
	"fmt"
	"strings"

	"golang.org/x/exp/slices"
)

// Phrases are the texts that mark the end of a flash in the free-text
// messages of the service.
// TODO: switch to a structured terminal status once the service reports one.
type Phrases struct {
	Success []string
	Failure []string
}

// DefaultPhrases returns the phrases emitted by the current service.
func DefaultPhrases() Phrases {
	return Phrases{
		Success: []string{"Flash completed successfully"},
		Failure: []string{"Flash failed"},
	}
}

// Status is the overall outcome of a progress stream.
type Status int

const (
	// Succeeded means a success phrase was found and the transfer exited cleanly
	Succeeded Status = iota
	// Failed means the service reported a failure
	Failed
	// Ambiguous means the transfer exited cleanly but nothing said how the flash went
	Ambiguous
	// TransferFailed means the transfer itself exited with a non-zero code
	TransferFailed
)

func (s Status) String() string {
	switch s {
	case Succeeded:
		return "succeeded"
	case Failed:
		return "failed"
	case Ambiguous:
		return "ambiguous"
	case TransferFailed:
		return "transfer failed"
	}
	return fmt.Sprintf("Status(%d)", int(s))
}

// Verdict is the judgement of a complete stream.
type Verdict struct {
	Status  Status
	Message string
}

func containsAny(msg string, phrases []string) bool {
	return slices.IndexFunc(phrases, func(p string) bool {
		return p != "" && strings.Contains(msg, p)
	}) >= 0
}

// Judge derives the verdict from every event of the stream and the exit
// code of the transfer. A success phrase anywhere in the stream wins over
// later error lines; a stream that names neither outcome is never a
// success.
func (ph Phrases) Judge(events []Event, exitCode int) Verdict {
	if exitCode != 0 {
		return Verdict{Status: TransferFailed, Message: fmt.Sprintf("Stream operation failed with code %d", exitCode)}
	}

	successAt := slices.IndexFunc(events, func(e Event) bool {
		return containsAny(e.Message, ph.Success)
	})
	if successAt >= 0 {
		return Verdict{Status: Succeeded, Message: events[successAt].Message}
	}

	failureAt := -1
	for i, e := range events {
		if e.Type == Error || containsAny(e.Message, ph.Failure) {
			failureAt = i
		}
	}
	if failureAt >= 0 {
		msg := events[failureAt].Message
		if msg == "" {
			msg = "Flash operation failed"
		}
		return Verdict{Status: Failed, Message: msg}
	}

	msg := "No clear success or error indication found"
	if len(events) > 0 && events[len(events)-1].Message != "" {
		msg += ", last message: " + events[len(events)-1].Message
	}
	return Verdict{Status: Ambiguous, Message: msg}
}
