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

// Package remote is the typed client of the remote flashing service, the
// HTTP daemon that owns the programmer and the target device.
package remote

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/arduino/go-paths-helper"
	"github.com/openblockcc/remote-flasher/progress"
	"github.com/openblockcc/remote-flasher/transport"
	"github.com/openblockcc/remote-flasher/version"
	"github.com/sirupsen/logrus"
	semver "go.bug.st/relaxed-semver"
)

// Endpoint is the address of the service and the deadlines applied to it.
type Endpoint struct {
	URL      string
	Timeouts transport.Timeouts
}

// ParseEndpoint validates a service base URL.
func ParseEndpoint(rawURL string, timeouts transport.Timeouts) (Endpoint, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return Endpoint{}, fmt.Errorf("invalid server url %q: %w", rawURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return Endpoint{}, fmt.Errorf("invalid server url %q: scheme must be http or https", rawURL)
	}
	if u.Host == "" {
		return Endpoint{}, fmt.Errorf("invalid server url %q: missing host", rawURL)
	}
	return Endpoint{URL: strings.TrimRight(u.String(), "/"), Timeouts: timeouts}, nil
}

// Result is the success outcome of an operation. Payload is the decoded
// JSON answer of the service, or its text when it is not JSON.
type Result struct {
	Message string      `json:"message,omitempty"`
	Payload interface{} `json:"data,omitempty"`
}

// Client talks to one remote flashing service.
type Client struct {
	endpoint   Endpoint
	http       transport.Transport
	streamer   transport.Streamer
	logger     logrus.FieldLogger
	phrases    progress.Phrases
	minVersion *semver.RelaxedVersion
	curlPath   string
	fallback   bool
	userAgent  string
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the logger used for diagnostics.
func WithLogger(logger logrus.FieldLogger) Option {
	return func(c *Client) { c.logger = logger }
}

// WithTransport replaces the failover transport used for simple calls.
func WithTransport(t transport.Transport) Option {
	return func(c *Client) { c.http = t }
}

// WithStreamer replaces the curl transport used for streamed calls.
func WithStreamer(s transport.Streamer) Option {
	return func(c *Client) { c.streamer = s }
}

// WithCurl sets the curl binary used by the fallback and streamed calls.
func WithCurl(path string) Option {
	return func(c *Client) { c.curlPath = path }
}

// WithFallback enables or disables the curl fallback of simple calls.
func WithFallback(enabled bool) Option {
	return func(c *Client) { c.fallback = enabled }
}

// WithPhrases sets the texts that tell how a streamed flash ended.
func WithPhrases(p progress.Phrases) Option {
	return func(c *Client) { c.phrases = p }
}

// WithMinServerVersion makes TestConnection reject older services. An
// empty string disables the check.
func WithMinServerVersion(v string) Option {
	return func(c *Client) {
		if v == "" {
			c.minVersion = nil
			return
		}
		c.minVersion = semver.ParseRelaxed(v)
	}
}

// New creates a client for the service at endpoint.
func New(endpoint Endpoint, opts ...Option) *Client {
	c := &Client{
		endpoint:  endpoint,
		logger:    logrus.StandardLogger(),
		phrases:   progress.DefaultPhrases(),
		fallback:  true,
		userAgent: version.VersionInfo.UserAgent(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.WithField("server", endpoint.URL)

	cfg := transport.Config{
		BaseURL:   endpoint.URL,
		Timeouts:  endpoint.Timeouts,
		UserAgent: c.userAgent,
		Logger:    c.logger,
	}
	curl := transport.NewCurl(cfg, c.curlPath)
	if c.http == nil {
		var fallback transport.Transport
		if c.fallback {
			fallback = curl
		}
		c.http = transport.NewFailover(transport.NewDirect(cfg), fallback, c.logger)
	}
	if c.streamer == nil {
		c.streamer = curl
	}
	return c
}

// URL returns the base URL of the service.
func (c *Client) URL() string {
	return c.endpoint.URL
}

const (
	msgStatus    = "Failed to connect to remote flasher server"
	msgConfig    = "Failed to get server configuration"
	msgDevice    = "Failed to get device information"
	msgReset     = "Failed to control device reset"
	msgFlashFile = "Failed to flash file to remote device"
	msgFlashURL  = "Failed to flash from URL to remote device"
	msgStream    = "Stream flash failed"
	msgOperation = "Remote flash failed"
)

func (c *Client) call(ctx context.Context, req *transport.Request, message string) (*Result, error) {
	res, err := c.http.Do(ctx, req)
	if err != nil {
		rerr := fromTransport(message, err)
		c.logger.WithField("kind", rerr.Kind).WithError(err).Warnf("%s %s failed", req.Method, req.Path)
		return nil, rerr
	}
	if !res.OK() {
		rerr := fromStatus(message, res)
		c.logger.WithField("kind", rerr.Kind).Warnf("%s %s: %s", req.Method, req.Path, rerr.Detail)
		return nil, rerr
	}
	return &Result{Payload: res.Payload()}, nil
}

// GetStatus queries GET /status, the liveness probe of the service. Any
// 2xx answer is a success, whatever the shape of its body.
func (c *Client) GetStatus(ctx context.Context) (*Result, error) {
	c.logger.Debug("Getting server status")
	return c.call(ctx, &transport.Request{Method: http.MethodGet, Path: "/status"}, msgStatus)
}

// GetConfig queries GET /config.
func (c *Client) GetConfig(ctx context.Context) (*Result, error) {
	c.logger.Debug("Getting server configuration")
	return c.call(ctx, &transport.Request{Method: http.MethodGet, Path: "/config"}, msgConfig)
}

// ServerInfo aggregates the answers collected by TestConnection. Each
// field is a decoded JSON value or the raw text of the answer.
type ServerInfo struct {
	Status interface{} `json:"status"`
	Config interface{} `json:"config"`
}

func (s *ServerInfo) statusField(key string) (interface{}, bool) {
	obj, ok := s.Status.(map[string]interface{})
	if !ok {
		return nil, false
	}
	v, ok := obj[key]
	return v, ok
}

// Readiness returns the flasher_ready flag of the status answer and whether
// the service reported it at all.
func (s *ServerInfo) Readiness() (ready, reported bool) {
	v, ok := s.statusField("flasher_ready")
	if !ok {
		return false, false
	}
	ready, reported = v.(bool)
	return ready, reported
}

// Ready reports the flasher_ready flag of the status answer.
func (s *ServerInfo) Ready() bool {
	ready, _ := s.Readiness()
	return ready
}

// Version returns the version reported by the service, if any.
func (s *ServerInfo) Version() string {
	v, _ := s.statusField("version")
	str, _ := v.(string)
	return str
}

func failedCheck(check, message string, err error) error {
	var rerr *Error
	if !errors.As(err, &rerr) {
		return &Error{Kind: ConnectionFailed, Message: message, Detail: err.Error(), Check: check, Err: err}
	}
	return &Error{
		Kind:    rerr.Kind,
		Message: message,
		Detail:  rerr.Error(),
		Status:  rerr.Status,
		Check:   check,
		Err:     rerr,
	}
}

// TestConnection succeeds only when both the status and the config checks
// succeed. It stops at the first failing check, which is named in the
// Check field of the returned error.
func (c *Client) TestConnection(ctx context.Context) (*Result, error) {
	c.logger.Info("Testing connection to remote flasher server")

	status, err := c.GetStatus(ctx)
	if err != nil {
		return nil, failedCheck("status", "Cannot connect to remote flasher server", err)
	}
	config, err := c.GetConfig(ctx)
	if err != nil {
		return nil, failedCheck("config", "Cannot get server configuration", err)
	}

	info := &ServerInfo{Status: status.Payload, Config: config.Payload}
	if err := c.checkVersion(info); err != nil {
		return nil, err
	}
	if ready, reported := info.Readiness(); reported && !ready {
		c.logger.Warn("Remote flasher reports it is not ready")
	}
	c.logger.Info("Connection test successful")
	return &Result{Message: "Remote flasher server is available", Payload: info}, nil
}

func (c *Client) checkVersion(info *ServerInfo) error {
	if c.minVersion == nil {
		return nil
	}
	const message = "Incompatible remote flasher server"
	reported := info.Version()
	if reported == "" {
		return &Error{Kind: ProtocolError, Message: message, Detail: "the server did not report its version", Check: "version"}
	}
	if semver.ParseRelaxed(reported).LessThan(c.minVersion) {
		return &Error{
			Kind:    ProtocolError,
			Message: message,
			Detail:  fmt.Sprintf("version %s is older than the required %s", reported, c.minVersion),
			Check:   "version",
		}
	}
	return nil
}

// DeviceInfo queries GET /device/info for the selected device. A failure
// here usually means no device is attached, callers should not treat it as
// fatal.
func (c *Client) DeviceInfo(ctx context.Context, opts Options) (*Result, error) {
	c.logger.WithField("options", opts).Debug("Getting device info")
	return c.call(ctx, &transport.Request{
		Method: http.MethodGet,
		Path:   "/device/info",
		Query:  opts.Query(),
	}, msgDevice)
}

// ControlReset drives the reset line of the device: assert holds it for
// duration, release lets it go.
func (c *Client) ControlReset(ctx context.Context, assert bool, duration time.Duration) (*Result, error) {
	c.logger.WithField("reset", assert).WithField("duration", duration).Debug("Controlling device reset")
	return c.call(ctx, &transport.Request{
		Method: http.MethodPost,
		Path:   "/control/reset",
		JSON: map[string]interface{}{
			"reset":    assert,
			"duration": duration.Seconds(),
		},
	}, msgReset)
}

func checkFile(path string) error {
	p := paths.New(path)
	if p == nil {
		return NewError(FileNotFound, "File not found", "no firmware path given")
	}
	if isDir, err := p.IsDirCheck(); err != nil || isDir {
		return NewError(FileNotFound, "File not found", p.String())
	}
	return nil
}

func (c *Client) form(path string, opts Options) *transport.Form {
	return &transport.Form{FileField: "file", FilePath: path, Fields: opts.Fields()}
}

// FlashFile uploads the firmware with POST /flash/file and waits for the
// flash report.
func (c *Client) FlashFile(ctx context.Context, path string, opts Options) (*Result, error) {
	if err := checkFile(path); err != nil {
		return nil, err
	}
	c.logger.WithField("firmware", path).Info("Flashing file")
	res, err := c.call(ctx, &transport.Request{
		Method:  http.MethodPost,
		Path:    "/flash/file",
		Form:    c.form(path, opts),
		Timeout: c.endpoint.Timeouts.Upload,
	}, msgFlashFile)
	if err != nil {
		return nil, err
	}
	res.Message = "Firmware flashed"
	return res, nil
}

// FlashURL asks the service to fetch the firmware itself from firmwareURL.
func (c *Client) FlashURL(ctx context.Context, firmwareURL string, opts Options) (*Result, error) {
	c.logger.WithField("url", firmwareURL).Info("Flashing from URL")
	body := struct {
		URL string `json:"url"`
		Options
	}{firmwareURL, opts}
	res, err := c.call(ctx, &transport.Request{
		Method:  http.MethodPost,
		Path:    "/flash/url",
		JSON:    body,
		Timeout: c.endpoint.Timeouts.Upload,
	}, msgFlashURL)
	if err != nil {
		return nil, err
	}
	res.Message = "Firmware flashed"
	return res, nil
}

// WaitForService polls the status endpoint every interval until it answers
// or maxWait elapses. Zero values select 30s and 1s.
func (c *Client) WaitForService(ctx context.Context, maxWait, interval time.Duration) (*Result, error) {
	if maxWait <= 0 {
		maxWait = 30 * time.Second
	}
	if interval <= 0 {
		interval = time.Second
	}
	deadline := time.Now().Add(maxWait)
	for attempt := 1; ; attempt++ {
		res, err := c.GetStatus(ctx)
		if err == nil {
			res.Message = "Remote flasher server is available"
			return res, nil
		}
		if ctx.Err() != nil {
			return nil, fromTransport("Stopped waiting for remote flasher server", ctx.Err())
		}
		if time.Now().Add(interval).After(deadline) {
			return nil, &Error{
				Kind:    Timeout,
				Message: "Remote flasher server did not become available",
				Detail:  fmt.Sprintf("waited %s: %s", maxWait, err),
				Err:     err,
			}
		}
		c.logger.WithField("attempt", attempt).Debugf("Server not available yet, retrying in %s", interval)
		t := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil, fromTransport("Stopped waiting for remote flasher server", ctx.Err())
		case <-t.C:
		}
	}
}
