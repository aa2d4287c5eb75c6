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

package common

import (
	"fmt"
	"os"

	"github.com/arduino/go-paths-helper"
	"github.com/openblockcc/remote-flasher/cli/feedback"
	"github.com/openblockcc/remote-flasher/cli/globals"
	"github.com/openblockcc/remote-flasher/config"
	"github.com/openblockcc/remote-flasher/firmware"
	"github.com/openblockcc/remote-flasher/history"
	"github.com/openblockcc/remote-flasher/remote"
	"github.com/openblockcc/remote-flasher/session"
	"github.com/sirupsen/logrus"
)

var loaded *config.Config

// LoadConfig returns the settings, reading them on the first call.
func LoadConfig() *config.Config {
	if loaded != nil {
		return loaded
	}
	cfg, err := config.Load(globals.Settings, paths.New(globals.DataDir))
	if err != nil {
		feedback.Fatal(fmt.Sprintf("Error loading configuration: %s", err), feedback.ErrNoConfigFile)
	}
	logrus.WithField("data-dir", globals.DataDir).Debugf("configuration loaded: %+v", cfg.Remote())
	loaded = cfg
	return cfg
}

// CheckRemote exits when the remote flasher is not configured, unless a
// server URL was given on the command line.
func CheckRemote(cfg *config.Config) {
	if globals.ServerURLOverride {
		return
	}
	if !cfg.Remote().Active() {
		feedback.Fatal("Remote flasher is not enabled, run `"+os.Args[0]+" config set --enabled --server-url <url>` or pass --server-url", feedback.ErrBadArgument)
	}
}

// NewClient creates the client of the configured service.
func NewClient(cfg *config.Config) *remote.Client {
	CheckRemote(cfg)
	endpoint, err := remote.ParseEndpoint(cfg.ServerURL, cfg.Timeouts())
	if err != nil {
		feedback.Fatal(err.Error(), feedback.ErrBadArgument)
	}
	return remote.New(endpoint,
		remote.WithLogger(logrus.StandardLogger()),
		remote.WithCurl(cfg.CurlPath),
		remote.WithFallback(cfg.Fallback),
		remote.WithPhrases(cfg.Phrases()),
		remote.WithMinServerVersion(cfg.MinServerVersion),
	)
}

// NewResolver creates the firmware resolver. buildDir wins over the
// configured one; without both, the project build dir of fqbn in the data
// dir is scanned.
func NewResolver(cfg *config.Config, fqbn, buildDir string) *firmware.Resolver {
	r := &firmware.Resolver{
		Extensions:  cfg.FirmwareExtensions,
		DownloadDir: paths.New(globals.DataDir, "firmwares"),
		Logger:      logrus.StandardLogger(),
	}
	switch {
	case buildDir != "":
		r.BuildDir = paths.New(buildDir)
	case cfg.BuildDir != "":
		r.BuildDir = paths.New(cfg.BuildDir)
	case fqbn != "":
		r.BuildDir = firmware.ProjectBuildDir(paths.New(globals.DataDir), fqbn)
	}
	logrus.Debugf("firmware build dir: %s", r.BuildDir)
	return r
}

// NewOrchestrator creates the session orchestrator, recording the sessions
// in the history database. The returned function releases the database.
func NewOrchestrator(cfg *config.Config, client *remote.Client, resolver *firmware.Resolver) (*session.Orchestrator, func()) {
	opts := []session.Option{
		session.WithTiming(cfg.Timing()),
		session.WithLogger(logrus.StandardLogger()),
		session.WithServer(client.URL()),
	}
	closer := func() {}
	if store := OpenHistory(cfg, false); store != nil {
		opts = append(opts, session.WithRecorder(store))
		closer = func() { store.Close() }
	}
	return session.New(client, resolver, opts...), closer
}

// OpenHistory opens the history database. A failure is fatal only when
// required is true, otherwise it is logged and nil is returned.
func OpenHistory(cfg *config.Config, required bool) *history.Store {
	store, err := history.Open(paths.New(cfg.HistoryDB), logrus.StandardLogger())
	if err != nil {
		if required {
			feedback.Fatal(fmt.Sprintf("Error opening history: %s", err), feedback.ErrGeneric)
		}
		logrus.WithError(err).Warn("Flash history disabled")
		return nil
	}
	return store
}
