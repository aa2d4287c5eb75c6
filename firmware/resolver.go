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

// Package firmware finds the image to flash: an explicit file or URL, the
// artifact of a build, or the first image in the build output directory.
package firmware

import (
	"context"
	"fmt"
	"strings"

	"github.com/arduino/go-paths-helper"
	"github.com/openblockcc/remote-flasher/remote"
	"github.com/sirupsen/logrus"
)

// DefaultExtensions are the firmware image extensions looked up in a build
// directory.
var DefaultExtensions = []string{".hex"}

// Resolver turns a flash request into exactly one local firmware file.
type Resolver struct {
	// BuildDir is scanned when neither an explicit file nor an artifact is given
	BuildDir *paths.Path
	// Extensions accepted during the scan, DefaultExtensions if empty
	Extensions []string
	// DownloadDir receives firmwares given by URL
	DownloadDir *paths.Path
	Logger      logrus.FieldLogger
}

func (r *Resolver) logger() logrus.FieldLogger {
	if r.Logger == nil {
		return logrus.StandardLogger()
	}
	return r.Logger
}

func (r *Resolver) extensions() []string {
	if len(r.Extensions) == 0 {
		return DefaultExtensions
	}
	return r.Extensions
}

// Resolve returns the firmware to flash. An explicit override, either a
// local path or an http(s) URL, always wins; then comes the build
// artifact; last the build directory is scanned.
func (r *Resolver) Resolve(ctx context.Context, override, artifact string) (*paths.Path, error) {
	switch {
	case override != "" && IsURL(override):
		return r.Download(ctx, override)
	case override != "":
		return existingFile(override)
	case artifact != "":
		return existingFile(artifact)
	}

	if r.BuildDir == nil {
		return nil, remote.NewError(remote.FileNotFound, "No firmware found for flashing", "no firmware file given and no build directory configured")
	}
	fw, err := Discover(r.BuildDir, r.extensions())
	if err != nil {
		return nil, err
	}
	r.logger().WithField("firmware", fw).Debug("Using firmware found in build directory")
	return fw, nil
}

// IsURL reports whether s is an http or https URL.
func IsURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

func existingFile(file string) (*paths.Path, error) {
	p := paths.New(file)
	if isDir, err := p.IsDirCheck(); err != nil || isDir {
		return nil, remote.NewError(remote.FileNotFound, "Firmware file not found", file)
	}
	return p, nil
}

// Discover returns the first file in dir, in name order, whose extension is
// one of exts.
func Discover(dir *paths.Path, exts []string) (*paths.Path, error) {
	files, err := dir.ReadDir()
	if err != nil {
		return nil, remote.NewError(remote.FileNotFound, "No firmware found for flashing", fmt.Sprintf("cannot read build directory %s", dir))
	}
	files.FilterOutDirs()
	files.FilterSuffix(exts...)
	if len(files) == 0 {
		return nil, remote.NewError(remote.FileNotFound, "No firmware found for flashing",
			fmt.Sprintf("no %s file in %s", strings.Join(exts, " or "), dir))
	}
	files.Sort()
	return files[0], nil
}

// ProjectBuildDir is the build output directory of the project compiled
// for fqbn under dataDir, for example arduino/arduino_avr_uno/build.
func ProjectBuildDir(dataDir *paths.Path, fqbn string) *paths.Path {
	parts := strings.Split(strings.ReplaceAll(fqbn, ":", "_")+"_project", "_")
	if len(parts) > 3 {
		parts = parts[:3]
	}
	return dataDir.Join("arduino", strings.Join(parts, "_"), "build")
}

// RealtimeFirmware is the prebuilt firmware called name shipped next to the
// tools directory.
func RealtimeFirmware(toolsDir *paths.Path, name string) *paths.Path {
	return toolsDir.Parent().Join("firmwares", "arduino", name)
}
