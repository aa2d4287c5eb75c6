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
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/openblockcc/remote-flasher/transport"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"
)

// fakeService is a minimal remote flashing service.
type fakeService struct {
	*httptest.Server
	statusHits int32
	configHits int32
	status     http.HandlerFunc
	config     http.HandlerFunc
	mux        *http.ServeMux
}

func newFakeService(t *testing.T, setup ...func(s *fakeService)) *fakeService {
	s := &fakeService{mux: http.NewServeMux()}
	s.status = func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"flasher_ready": true, "version": "1.4.0"}`))
	}
	s.config = func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"default_mcu": "atmega328p", "reset_pin": 17}`))
	}
	s.mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&s.statusHits, 1)
		s.status(w, r)
	})
	s.mux.HandleFunc("/config", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&s.configHits, 1)
		s.config(w, r)
	})
	for _, f := range setup {
		f(s)
	}
	s.Server = httptest.NewServer(s.mux)
	t.Cleanup(s.Close)
	return s
}

func newTestClient(t *testing.T, baseURL string, opts ...Option) *Client {
	logger, _ := test.NewNullLogger()
	endpoint, err := ParseEndpoint(baseURL, transport.Timeouts{Connect: time.Second, Total: 2 * time.Second, Upload: 2 * time.Second})
	require.NoError(t, err)
	opts = append([]Option{WithLogger(logger), WithFallback(false)}, opts...)
	return New(endpoint, opts...)
}

func writeFirmware(t *testing.T) string {
	firmware := filepath.Join(t.TempDir(), "Blink.ino.hex")
	require.NoError(t, os.WriteFile(firmware, []byte(":100000000C9434000C943E000C943E000C943E0082\n"), 0644))
	return firmware
}

func TestParseEndpoint(t *testing.T) {
	e, err := ParseEndpoint(" http://raspberrypi.local:5000/ ", transport.DefaultTimeouts())
	require.NoError(t, err)
	require.Equal(t, "http://raspberrypi.local:5000", e.URL)

	_, err = ParseEndpoint("raspberrypi.local:5000", transport.DefaultTimeouts())
	require.Error(t, err)
	_, err = ParseEndpoint("ftp://pi", transport.DefaultTimeouts())
	require.Error(t, err)
	_, err = ParseEndpoint("http://", transport.DefaultTimeouts())
	require.Error(t, err)
}

func TestOptionsAreSparse(t *testing.T) {
	require.Empty(t, Options{}.Fields())
	require.Empty(t, Options{}.Query())
	require.True(t, Options{}.IsZero())

	opts := Options{MCU: "atmega328p", BaudRate: 115200}
	require.Equal(t, []transport.Field{{Name: "mcu", Value: "atmega328p"}, {Name: "baudrate", Value: "115200"}}, opts.Fields())
	require.Equal(t, "baudrate=115200&mcu=atmega328p", opts.Query().Encode())

	merged := Options{Port: "/dev/ttyUSB0"}.Merge(Options{MCU: "atmega2560", Programmer: "wiring", Port: "/dev/ttyS0", BaudRate: 115200})
	require.Equal(t, Options{MCU: "atmega2560", Programmer: "wiring", Port: "/dev/ttyUSB0", BaudRate: 115200}, merged)
}

func TestGetStatus(t *testing.T) {
	srv := newFakeService(t)
	res, err := newTestClient(t, srv.URL).GetStatus(context.Background())
	require.NoError(t, err)
	require.Equal(t, map[string]interface{}{"flasher_ready": true, "version": "1.4.0"}, res.Payload)
}

func TestGetStatusTextBody(t *testing.T) {
	srv := newFakeService(t, func(s *fakeService) {
		s.status = func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("OK\n"))
		}
	})
	res, err := newTestClient(t, srv.URL).GetStatus(context.Background())
	require.NoError(t, err)
	require.Equal(t, "OK", res.Payload)
}

func TestTestConnectionTextBodies(t *testing.T) {
	srv := newFakeService(t, func(s *fakeService) {
		s.status = func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("OK"))
		}
		s.config = func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("avrdude"))
		}
	})
	res, err := newTestClient(t, srv.URL).TestConnection(context.Background())
	require.NoError(t, err)
	info := res.Payload.(*ServerInfo)
	require.Equal(t, "OK", info.Status)
	require.Equal(t, "avrdude", info.Config)
	require.False(t, info.Ready())
	_, reported := info.Readiness()
	require.False(t, reported)
	require.Empty(t, info.Version())

	// a version requirement needs a structured status
	_, err = newTestClient(t, srv.URL, WithMinServerVersion("1.0.0")).TestConnection(context.Background())
	var rerr *Error
	require.ErrorAs(t, err, &rerr)
	require.Equal(t, ProtocolError, rerr.Kind)
	require.Equal(t, "version", rerr.Check)
}

func TestServerErrorCarriesBody(t *testing.T) {
	srv := newFakeService(t, func(s *fakeService) {
		s.config = func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"error": "avrdude not installed"}`))
		}
	})
	_, err := newTestClient(t, srv.URL).GetConfig(context.Background())
	var rerr *Error
	require.ErrorAs(t, err, &rerr)
	require.Equal(t, ServerError, rerr.Kind)
	require.Equal(t, http.StatusServiceUnavailable, rerr.Status)
	require.Equal(t, "Failed to get server configuration: 503 avrdude not installed", rerr.Error())
}

func TestConnectionFailed(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := newTestClient(t, url).GetStatus(context.Background())
	kind, ok := KindOf(err)
	require.True(t, ok)
	require.Equal(t, ConnectionFailed, kind)
	require.True(t, kind.IsNetwork())
}

func TestTestConnection(t *testing.T) {
	srv := newFakeService(t)
	res, err := newTestClient(t, srv.URL).TestConnection(context.Background())
	require.NoError(t, err)
	require.Equal(t, "Remote flasher server is available", res.Message)
	info := res.Payload.(*ServerInfo)
	require.True(t, info.Ready())
	require.Equal(t, "1.4.0", info.Version())
	require.Equal(t, "atmega328p", info.Config.(map[string]interface{})["default_mcu"])
}

func TestTestConnectionFailsFastOnStatus(t *testing.T) {
	srv := newFakeService(t, func(s *fakeService) {
		s.status = func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}
	})
	_, err := newTestClient(t, srv.URL).TestConnection(context.Background())
	var rerr *Error
	require.ErrorAs(t, err, &rerr)
	require.Equal(t, "status", rerr.Check)
	require.Equal(t, ServerError, rerr.Kind)
	require.Contains(t, rerr.Error(), "Cannot connect to remote flasher server")
	require.EqualValues(t, 1, atomic.LoadInt32(&srv.statusHits))
	require.Zero(t, atomic.LoadInt32(&srv.configHits))
}

func TestTestConnectionConfigCheck(t *testing.T) {
	srv := newFakeService(t, func(s *fakeService) {
		s.config = func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte("not configured"))
		}
	})
	_, err := newTestClient(t, srv.URL).TestConnection(context.Background())
	var rerr *Error
	require.ErrorAs(t, err, &rerr)
	require.Equal(t, "config", rerr.Check)
	require.Equal(t, ServerError, rerr.Kind)
	require.Equal(t, http.StatusServiceUnavailable, rerr.Status)
	require.Contains(t, rerr.Detail, "503 not configured")
}

func TestTestConnectionMinimumVersion(t *testing.T) {
	srv := newFakeService(t)

	_, err := newTestClient(t, srv.URL, WithMinServerVersion("1.2")).TestConnection(context.Background())
	require.NoError(t, err)

	_, err = newTestClient(t, srv.URL, WithMinServerVersion("2.0.0")).TestConnection(context.Background())
	var rerr *Error
	require.ErrorAs(t, err, &rerr)
	require.Equal(t, ProtocolError, rerr.Kind)
	require.Equal(t, "version", rerr.Check)

	unversioned := newFakeService(t, func(s *fakeService) {
		s.status = func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"flasher_ready": true}`))
		}
	})
	_, err = newTestClient(t, unversioned.URL, WithMinServerVersion("1.0.0")).TestConnection(context.Background())
	require.True(t, IsKind(err, ProtocolError))
}

func TestDeviceInfoSendsSparseQuery(t *testing.T) {
	srv := newFakeService(t, func(s *fakeService) {
		s.mux.HandleFunc("/device/info", func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, "mcu=atmega328p&port=%2Fdev%2FttyS0", r.URL.RawQuery)
			w.Write([]byte(`{"signature": "0x1e950f"}`))
		})
	})
	res, err := newTestClient(t, srv.URL).DeviceInfo(context.Background(), Options{MCU: "atmega328p", Port: "/dev/ttyS0"})
	require.NoError(t, err)
	require.Equal(t, map[string]interface{}{"signature": "0x1e950f"}, res.Payload)
}

func TestControlReset(t *testing.T) {
	var mu sync.Mutex
	var bodies []map[string]interface{}
	srv := newFakeService(t, func(s *fakeService) {
		s.mux.HandleFunc("/control/reset", func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, http.MethodPost, r.Method)
			var body map[string]interface{}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			mu.Lock()
			bodies = append(bodies, body)
			mu.Unlock()
			w.Write([]byte("reset ok"))
		})
	})
	c := newTestClient(t, srv.URL)
	res, err := c.ControlReset(context.Background(), true, 500*time.Millisecond)
	require.NoError(t, err)
	require.Equal(t, "reset ok", res.Payload)
	_, err = c.ControlReset(context.Background(), false, 200*time.Millisecond)
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []map[string]interface{}{
		{"reset": true, "duration": 0.5},
		{"reset": false, "duration": 0.2},
	}, bodies)
}

func TestFlashFile(t *testing.T) {
	srv := newFakeService(t, func(s *fakeService) {
		s.mux.HandleFunc("/flash/file", func(w http.ResponseWriter, r *http.Request) {
			require.NoError(t, r.ParseMultipartForm(1<<20))
			require.Equal(t, "atmega328p", r.FormValue("mcu"))
			require.Equal(t, "arduino", r.FormValue("programmer"))
			require.Empty(t, r.MultipartForm.Value["port"])
			_, header, err := r.FormFile("file")
			require.NoError(t, err)
			require.Equal(t, "Blink.ino.hex", header.Filename)
			w.Write([]byte(`{"success": true, "output": "avrdude done"}`))
		})
	})
	res, err := newTestClient(t, srv.URL).FlashFile(context.Background(), writeFirmware(t), Options{MCU: "atmega328p", Programmer: "arduino"})
	require.NoError(t, err)
	require.Equal(t, "avrdude done", res.Payload.(map[string]interface{})["output"])
}

func TestFlashFileMissingBeforeNetwork(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	missing := filepath.Join(t.TempDir(), "missing.hex")
	_, err := c.FlashFile(context.Background(), missing, Options{})
	require.True(t, IsKind(err, FileNotFound))
	_, err = c.FlashFile(context.Background(), t.TempDir(), Options{})
	require.True(t, IsKind(err, FileNotFound))
	_, err = c.FlashFile(context.Background(), "", Options{})
	require.True(t, IsKind(err, FileNotFound))
	require.Zero(t, atomic.LoadInt32(&hits))
}

func TestFlashURL(t *testing.T) {
	srv := newFakeService(t, func(s *fakeService) {
		s.mux.HandleFunc("/flash/url", func(w http.ResponseWriter, r *http.Request) {
			var body map[string]interface{}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			require.Equal(t, map[string]interface{}{
				"url":      "https://example.com/Blink.hex",
				"mcu":      "atmega2560",
				"baudrate": float64(115200),
			}, body)
			w.Write([]byte(`{"success": true}`))
		})
	})
	_, err := newTestClient(t, srv.URL).FlashURL(context.Background(), "https://example.com/Blink.hex", Options{MCU: "atmega2560", BaudRate: 115200})
	require.NoError(t, err)
}

func TestWaitForService(t *testing.T) {
	srv := newFakeService(t, func(s *fakeService) {
		s.status = func(w http.ResponseWriter, r *http.Request) {
			if atomic.LoadInt32(&s.statusHits) < 3 {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			w.Write([]byte(`{"flasher_ready": true}`))
		}
	})
	res, err := newTestClient(t, srv.URL).WaitForService(context.Background(), 5*time.Second, 10*time.Millisecond)
	require.NoError(t, err)
	require.Equal(t, "Remote flasher server is available", res.Message)
	require.EqualValues(t, 3, atomic.LoadInt32(&srv.statusHits))
}

func TestWaitForServiceGivesUp(t *testing.T) {
	srv := newFakeService(t, func(s *fakeService) {
		s.status = func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
	})
	_, err := newTestClient(t, srv.URL).WaitForService(context.Background(), 50*time.Millisecond, 20*time.Millisecond)
	require.True(t, IsKind(err, Timeout))
	require.GreaterOrEqual(t, atomic.LoadInt32(&srv.statusHits), int32(2))
}

func TestWaitForServiceCanceled(t *testing.T) {
	srv := newFakeService(t, func(s *fakeService) {
		s.status = func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
	})
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err := newTestClient(t, srv.URL).WaitForService(ctx, 10*time.Second, 10*time.Millisecond)
	require.Error(t, err)
	kind, _ := KindOf(err)
	require.Contains(t, []Kind{Timeout, Aborted}, kind)
}
