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
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"path/filepath"

	"github.com/arduino/go-paths-helper"
)

// Direct sends requests from this process with net/http. Connections are
// not reused and IPv4 is preferred, some embedded hosts answer slowly on
// their IPv6 address.
type Direct struct {
	cfg    Config
	client *http.Client
}

// NewDirect creates a Direct transport.
func NewDirect(cfg Config) *Direct {
	cfg = cfg.normalized()
	dialer := &net.Dialer{Timeout: cfg.Timeouts.Connect}
	return &Direct{
		cfg: cfg,
		client: &http.Client{
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				DialContext:         dialIPv4(dialer),
				TLSHandshakeTimeout: cfg.Timeouts.Connect,
				DisableKeepAlives:   true,
			},
		},
	}
}

func dialIPv4(dialer *net.Dialer) func(ctx context.Context, network, addr string) (net.Conn, error) {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		if network == "tcp" {
			host, _, err := net.SplitHostPort(addr)
			if ip := net.ParseIP(host); err == nil && (ip == nil || ip.To4() != nil) {
				network = "tcp4"
			}
		}
		return dialer.DialContext(ctx, network, addr)
	}
}

// Do performs the request.
func (d *Direct) Do(ctx context.Context, req *Request) (*Response, error) {
	log := d.cfg.Logger.WithField("method", req.Method).WithField("path", req.Path)

	body, contentType, err := encodeBody(req)
	if err != nil {
		return nil, err
	}

	callCtx, cancel := context.WithTimeout(ctx, req.timeout(d.cfg.Timeouts.Total))
	defer cancel()

	httpReq, err := http.NewRequestWithContext(callCtx, req.Method, d.cfg.url(req), body)
	if err != nil {
		return nil, fmt.Errorf("building request %s: %w", req.op(), err)
	}
	httpReq.Close = true
	httpReq.Header.Set("User-Agent", d.cfg.UserAgent)
	httpReq.Header.Set("Accept", req.accept())
	if contentType != "" {
		httpReq.Header.Set("Content-Type", contentType)
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}

	log.Debug("Sending request")
	res, err := d.client.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &Error{Kind: classify(err), Op: req.op(), Err: err}
	}
	defer res.Body.Close()

	data, err := io.ReadAll(res.Body)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		kind := classify(err)
		if kind == ConnectionFailed {
			kind = MalformedResponse
		}
		return nil, &Error{Kind: kind, Op: req.op(), Err: err}
	}
	log.WithField("status", res.StatusCode).Debug("Response received")

	return &Response{
		StatusCode: res.StatusCode,
		Header:     res.Header,
		Body:       data,
	}, nil
}

func encodeBody(req *Request) (io.Reader, string, error) {
	switch {
	case req.Form != nil:
		return encodeForm(req.Form)
	case req.JSON != nil:
		data, err := encodeJSON(req.JSON)
		if err != nil {
			return nil, "", err
		}
		return bytes.NewReader(data), "application/json", nil
	}
	return nil, "", nil
}

// encodeForm buffers the whole multipart body, firmware images are small.
func encodeForm(form *Form) (io.Reader, string, error) {
	buf := new(bytes.Buffer)
	w := multipart.NewWriter(buf)

	for _, f := range form.Fields {
		if err := w.WriteField(f.Name, f.Value); err != nil {
			return nil, "", fmt.Errorf("writing form field %s: %w", f.Name, err)
		}
	}

	file, err := paths.New(form.FilePath).Open()
	if err != nil {
		return nil, "", fmt.Errorf("opening %s: %w", form.FilePath, err)
	}
	defer file.Close()
	part, err := w.CreateFormFile(form.FileField, filepath.Base(form.FilePath))
	if err != nil {
		return nil, "", fmt.Errorf("creating form file: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return nil, "", fmt.Errorf("reading %s: %w", form.FilePath, err)
	}
	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("closing form: %w", err)
	}
	return buf, w.FormDataContentType(), nil
}
