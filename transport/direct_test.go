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
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"
)

func testConfig(baseURL string) Config {
	logger, _ := test.NewNullLogger()
	return Config{BaseURL: baseURL, UserAgent: "remote-flasher/test", Logger: logger}
}

func TestDirectDecodesJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/status", r.URL.Path)
		require.Equal(t, "remote-flasher/test", r.Header.Get("User-Agent"))
		require.Equal(t, "application/json", r.Header.Get("Accept"))
		w.Write([]byte(`{"flasher_ready": true, "version": "1.2.0"}`))
	}))
	defer srv.Close()

	res, err := NewDirect(testConfig(srv.URL+"/")).Do(context.Background(), &Request{Method: http.MethodGet, Path: "/status"})
	require.NoError(t, err)
	require.True(t, res.OK())
	payload, ok := res.Payload().(map[string]interface{})
	require.True(t, ok)
	require.Equal(t, true, payload["flasher_ready"])
	require.Equal(t, "1.2.0", payload["version"])
}

func TestDirectKeepsTextBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("reset done\n"))
	}))
	defer srv.Close()

	res, err := NewDirect(testConfig(srv.URL)).Do(context.Background(), &Request{Method: http.MethodGet, Path: "/"})
	require.NoError(t, err)
	require.Equal(t, "reset done", res.Payload())
}

func TestDirectReturnsErrorStatusAsResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error": "avrdude missing"}`))
	}))
	defer srv.Close()

	res, err := NewDirect(testConfig(srv.URL)).Do(context.Background(), &Request{Method: http.MethodGet, Path: "/config"})
	require.NoError(t, err)
	require.False(t, res.OK())
	require.Equal(t, http.StatusInternalServerError, res.StatusCode)
}

func TestDirectSendsJSONAndQuery(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.Equal(t, "atmega328p", r.URL.Query().Get("mcu"))
		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, true, body["reset"])
		require.Equal(t, 0.5, body["duration"])
		w.Write([]byte(`{"success": true}`))
	}))
	defer srv.Close()

	req := &Request{
		Method: http.MethodPost,
		Path:   "/control/reset",
		Query:  url.Values{"mcu": {"atmega328p"}},
		JSON:   map[string]interface{}{"reset": true, "duration": 0.5},
	}
	res, err := NewDirect(testConfig(srv.URL)).Do(context.Background(), req)
	require.NoError(t, err)
	require.True(t, res.OK())
}

func TestDirectSendsMultipartForm(t *testing.T) {
	firmware := filepath.Join(t.TempDir(), "Blink.ino.hex")
	require.NoError(t, os.WriteFile(firmware, []byte(":00000001FF\n"), 0644))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		require.Equal(t, "atmega328p", r.FormValue("mcu"))
		require.Equal(t, "115200", r.FormValue("baudrate"))
		file, header, err := r.FormFile("file")
		require.NoError(t, err)
		defer file.Close()
		require.Equal(t, "Blink.ino.hex", header.Filename)
		data, err := io.ReadAll(file)
		require.NoError(t, err)
		require.Equal(t, ":00000001FF\n", string(data))
		w.Write([]byte(`{"success": true, "message": "flashed"}`))
	}))
	defer srv.Close()

	req := &Request{
		Method: http.MethodPost,
		Path:   "/flash/file",
		Form: &Form{
			FileField: "file",
			FilePath:  firmware,
			Fields:    []Field{{"mcu", "atmega328p"}, {"baudrate", "115200"}},
		},
	}
	res, err := NewDirect(testConfig(srv.URL)).Do(context.Background(), req)
	require.NoError(t, err)
	require.True(t, res.OK())
}

func TestDirectConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close()

	_, err := NewDirect(testConfig(addr)).Do(context.Background(), &Request{Method: http.MethodGet, Path: "/status"})
	var terr *Error
	require.True(t, errors.As(err, &terr))
	require.Equal(t, ConnectionFailed, terr.Kind)
	require.Equal(t, "GET /status", terr.Op)
}

func TestDirectTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	req := &Request{Method: http.MethodGet, Path: "/status", Timeout: 50 * time.Millisecond}
	_, err := NewDirect(testConfig(srv.URL)).Do(context.Background(), req)
	var terr *Error
	require.True(t, errors.As(err, &terr))
	require.Equal(t, Timeout, terr.Kind)
}

func TestDirectMalformedResponse(t *testing.T) {
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		buf := make([]byte, 1024)
		conn.Read(buf)
		conn.Write([]byte("HELLO FROM A SERIAL BRIDGE\r\n\r\n"))
		conn.Close()
	}()

	_, err = NewDirect(testConfig("http://"+ln.Addr().String())).Do(context.Background(), &Request{Method: http.MethodGet, Path: "/status"})
	var terr *Error
	require.True(t, errors.As(err, &terr))
	require.Equal(t, MalformedResponse, terr.Kind)
}

func TestDirectMissingFormFileIsNotATransportError(t *testing.T) {
	req := &Request{
		Method: http.MethodPost,
		Path:   "/flash/file",
		Form:   &Form{FileField: "file", FilePath: filepath.Join(t.TempDir(), "missing.hex")},
	}
	_, err := NewDirect(testConfig("http://127.0.0.1:1")).Do(context.Background(), req)
	require.Error(t, err)
	var terr *Error
	require.False(t, errors.As(err, &terr))
}
