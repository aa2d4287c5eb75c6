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

package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/arduino/go-paths-helper"
	"github.com/google/uuid"
	"github.com/openblockcc/remote-flasher/firmware"
	"github.com/openblockcc/remote-flasher/progress"
	"github.com/openblockcc/remote-flasher/remote"
	"github.com/sirupsen/logrus"
)

// Orchestrator runs flash sessions against one service, one at a time.
type Orchestrator struct {
	service  Service
	resolver Resolver
	timing   Timing
	logger   logrus.FieldLogger
	recorder Recorder
	server   string
	now      func() time.Time
	sleep    func(ctx context.Context, d time.Duration) error

	mu     sync.Mutex
	active *Session
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithTiming sets the reset pulse durations.
func WithTiming(t Timing) Option {
	return func(o *Orchestrator) { o.timing = t }
}

// WithLogger sets the logger.
func WithLogger(l logrus.FieldLogger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// WithRecorder stores a Report for every finished session.
func WithRecorder(r Recorder) Option {
	return func(o *Orchestrator) { o.recorder = r }
}

// WithServer names the service in the reports.
func WithServer(url string) Option {
	return func(o *Orchestrator) { o.server = url }
}

// New creates an orchestrator. resolver turns a FlashRequest into a local
// firmware file.
func New(service Service, resolver Resolver, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		service:  service,
		resolver: resolver,
		timing:   DefaultTiming(),
		logger:   logrus.StandardLogger(),
		now:      time.Now,
		sleep:    sleep,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// NewSession creates a session that can run once.
func (o *Orchestrator) NewSession() *Session {
	id := uuid.New().String()
	return &Session{
		o:      o,
		id:     id,
		logger: o.logger.WithField("session", id),
	}
}

// Run is a shortcut for NewSession().Run.
func (o *Orchestrator) Run(ctx context.Context, req FlashRequest, sink progress.Sink) (*remote.Result, error) {
	return o.NewSession().Run(ctx, req, sink)
}

func (o *Orchestrator) begin(s *Session) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.active != nil {
		return ErrBusy
	}
	o.active = s
	return nil
}

func (o *Orchestrator) end(s *Session) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.active == s {
		o.active = nil
	}
}

// Session is a single flash attempt.
type Session struct {
	o      *Orchestrator
	id     string
	logger logrus.FieldLogger

	aborted atomic.Bool
	started atomic.Bool

	mu    sync.Mutex
	state State
	sink  *guardedSink
}

// ID identifies the session in logs and history.
func (s *Session) ID() string {
	return s.id
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Abort asks the session to stop. It is checked before the session starts
// and before the flash is sent; a call already in flight is not
// interrupted.
func (s *Session) Abort() {
	s.aborted.Store(true)
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
	s.logger.WithField("state", st).Debug("Session state changed")
}

func (s *Session) info(format string, args ...interface{}) {
	s.sink.Send(progress.Infof(format, args...))
}

func (s *Session) abortError() error {
	return remote.NewError(remote.Aborted, "Remote flash aborted", "the operation was canceled")
}

// Run flashes the firmware of req. Progress, including the events streamed
// by the service, is sent to sink until Run returns.
func (s *Session) Run(ctx context.Context, req FlashRequest, sink progress.Sink) (*remote.Result, error) {
	if !s.started.CompareAndSwap(false, true) {
		return nil, ErrDone
	}
	if err := s.o.begin(s); err != nil {
		return nil, err
	}
	defer s.o.end(s)

	s.sink = &guardedSink{sink: sink}
	defer s.sink.close()

	report := &Report{ID: s.id, Started: s.o.now(), Server: s.o.server}
	res, err := s.run(ctx, req, report)
	final := Completed
	if err != nil {
		if remote.IsKind(err, remote.Aborted) {
			final = Aborted
		}
		s.sink.Send(progress.Errorf("Remote flash failed: %s", err))
		s.logger.WithError(err).Error("Remote flash failed")
	}
	// the sink stays silent once the terminal state is visible
	s.sink.close()
	s.setState(final)
	s.record(report, res, err)
	return res, err
}

func (s *Session) run(ctx context.Context, req FlashRequest, report *Report) (*remote.Result, error) {
	if s.aborted.Load() {
		return nil, s.abortError()
	}
	s.info("Starting remote flash operation...")

	fw, err := s.resolveFirmware(ctx, req)
	if err != nil {
		return nil, err
	}
	report.Firmware = fw.String()
	if sum, err := firmware.Checksum(fw); err == nil {
		report.Checksum = sum
	}

	s.info("Testing remote flasher connection...")
	if _, err := s.o.service.TestConnection(ctx); err != nil {
		s.sink.Send(progress.Errorf("Connection test failed: %s", err))
		return nil, err
	}
	s.info("Remote flasher connection OK")
	s.setState(ConnectivityChecked)

	if _, err := s.o.service.DeviceInfo(ctx, req.Options); err != nil {
		s.info("Device info not available: %s", err)
	} else {
		s.info("Remote device info retrieved")
	}

	if err := s.enterBootloader(ctx); err != nil {
		return nil, err
	}

	if s.aborted.Load() {
		return nil, s.abortError()
	}
	s.setState(Flashing)
	s.info("Flashing %s to remote device...", fw.Base())
	res, err := s.o.service.PerformOperation(ctx, fw.String(), req.Options, s.sink)
	if err != nil {
		return nil, err
	}

	s.restart(ctx)
	s.setState(ResetReleased)
	s.sink.Send(progress.Event{Type: progress.Success, Message: "Remote flash completed successfully!"})
	return res, nil
}

// resolveFirmware builds or resolves the image. It runs before any network call.
func (s *Session) resolveFirmware(ctx context.Context, req FlashRequest) (*paths.Path, error) {
	artifact := req.Artifact
	if req.Firmware == "" && req.Build != nil {
		s.info("Building firmware...")
		built, err := req.Build.Build(ctx)
		if err != nil {
			return nil, err
		}
		artifact = built.String()
	}
	fw, err := s.o.resolver.Resolve(ctx, req.Firmware, artifact)
	if err != nil {
		return nil, err
	}
	s.logger.WithField("firmware", fw).Info("Firmware resolved")
	return fw, nil
}

// reset sends one reset command. Failures are reported but never stop the
// session, boards without a reset based bootloader flash anyway.
func (s *Session) reset(ctx context.Context, assert bool, d time.Duration) {
	if _, err := s.o.service.ControlReset(ctx, assert, d); err != nil {
		s.sink.Send(progress.Errorf("Remote reset control failed: %s", err))
		return
	}
	if assert {
		s.info("Remote device reset activated")
	} else {
		s.info("Remote device reset released")
	}
}

func (s *Session) wait(ctx context.Context, d time.Duration) error {
	if err := s.o.sleep(ctx, d); err != nil {
		return s.abortError()
	}
	return nil
}

func (s *Session) enterBootloader(ctx context.Context) error {
	t := s.o.timing
	s.reset(ctx, true, t.BootloaderPulse)
	s.setState(ResetAsserted)
	if err := s.wait(ctx, t.BootloaderPulse); err != nil {
		return err
	}
	s.reset(ctx, false, t.ReleasePulse)
	return s.wait(ctx, t.BootloaderSettle)
}

// restart pulses reset so the new program starts. The flash already
// succeeded, a failure here is only reported.
func (s *Session) restart(ctx context.Context) {
	s.reset(ctx, true, s.o.timing.RestartPulse)
	s.reset(ctx, false, s.o.timing.ReleasePulse)
}

func (s *Session) record(report *Report, res *remote.Result, err error) {
	if s.o.recorder == nil {
		return
	}
	report.Duration = s.o.now().Sub(report.Started)
	if err != nil {
		report.Message = err.Error()
		var rerr *remote.Error
		if errors.As(err, &rerr) {
			report.Kind = rerr.Kind.String()
		}
	} else {
		report.Success = true
		report.Message = res.Message
	}
	// the caller context may be canceled already, the report is still kept
	if err := s.o.recorder.Record(context.Background(), report); err != nil {
		s.logger.WithError(err).Warn("Cannot record flash session")
	}
}
