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

// Package session drives a complete remote flash: connectivity check,
// bootloader entry through the reset line, streamed flash and restart.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/arduino/go-paths-helper"
	"github.com/openblockcc/remote-flasher/progress"
	"github.com/openblockcc/remote-flasher/remote"
)

// State is the step a session is in.
type State int

const (
	// Idle is the state of a session that did not run yet
	Idle State = iota
	// ConnectivityChecked means the service answered the connection test
	ConnectivityChecked
	// ResetAsserted means the bootloader entry sequence was sent
	ResetAsserted
	// Flashing means the firmware is being streamed to the service
	Flashing
	// ResetReleased means the restart pulse was sent after the flash
	ResetReleased
	// Completed is terminal, the session has a result
	Completed
	// Aborted is terminal, the session was stopped by the caller
	Aborted
)

var stateNames = map[State]string{
	Idle:                "Idle",
	ConnectivityChecked: "ConnectivityChecked",
	ResetAsserted:       "ResetAsserted",
	Flashing:            "Flashing",
	ResetReleased:       "ResetReleased",
	Completed:           "Completed",
	Aborted:             "Aborted",
}

func (s State) String() string {
	if n, ok := stateNames[s]; ok {
		return n
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == Completed || s == Aborted
}

// Timing holds the durations of the reset line pulses.
type Timing struct {
	// BootloaderPulse is how long reset is held to enter the bootloader,
	// and how long the session waits before releasing it
	BootloaderPulse time.Duration
	// BootloaderSettle is the wait after the release, before flashing
	BootloaderSettle time.Duration
	// ReleasePulse is the duration sent with every release
	ReleasePulse time.Duration
	// RestartPulse is how long reset is held to start the new program
	RestartPulse time.Duration
}

// DefaultTiming returns the timings that work with the Arduino bootloaders.
func DefaultTiming() Timing {
	return Timing{
		BootloaderPulse:  500 * time.Millisecond,
		BootloaderSettle: 500 * time.Millisecond,
		ReleasePulse:     200 * time.Millisecond,
		RestartPulse:     100 * time.Millisecond,
	}
}

// Service is the part of the remote client used by a session.
type Service interface {
	TestConnection(ctx context.Context) (*remote.Result, error)
	DeviceInfo(ctx context.Context, opts remote.Options) (*remote.Result, error)
	ControlReset(ctx context.Context, assert bool, duration time.Duration) (*remote.Result, error)
	PerformOperation(ctx context.Context, path string, opts remote.Options, sink progress.Sink) (*remote.Result, error)
}

// Resolver finds the firmware to flash.
type Resolver interface {
	Resolve(ctx context.Context, override, artifact string) (*paths.Path, error)
}

// Builder produces a firmware, e.g. by compiling a sketch.
type Builder interface {
	Build(ctx context.Context) (*paths.Path, error)
}

// FlashRequest is what a session flashes and where.
type FlashRequest struct {
	// Firmware is an explicit file or URL, it wins over everything else
	Firmware string
	// Artifact is a firmware produced by an earlier build
	Artifact string
	// Build, when set and no Firmware is given, produces the artifact
	Build   Builder
	Options remote.Options
}

// Report summarizes a finished session.
type Report struct {
	ID       string        `json:"id"`
	Started  time.Time     `json:"started"`
	Duration time.Duration `json:"duration"`
	Firmware string        `json:"firmware"`
	Checksum string        `json:"checksum,omitempty"`
	Server   string        `json:"server"`
	Success  bool          `json:"success"`
	Kind     string        `json:"kind,omitempty"`
	Message  string        `json:"message"`
}

// Recorder keeps the reports of finished sessions.
type Recorder interface {
	Record(ctx context.Context, r *Report) error
}

var (
	// ErrBusy is returned when a session is started while another one runs
	ErrBusy = errors.New("another flash session is in progress")
	// ErrDone is returned when a finished session is run again
	ErrDone = errors.New("flash session already ran")
)

// guardedSink drops events once the session is over.
type guardedSink struct {
	mu     sync.Mutex
	sink   progress.Sink
	closed bool
}

func (g *guardedSink) Send(e progress.Event) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed || g.sink == nil {
		return
	}
	g.sink.Send(e)
}

func (g *guardedSink) close() {
	g.mu.Lock()
	g.closed = true
	g.mu.Unlock()
}
