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

package firmware

import (
	"context"
	"errors"
	"strings"

	"github.com/arduino/arduino-cli/executils"
	"github.com/arduino/go-paths-helper"
	"github.com/openblockcc/remote-flasher/remote"
	"github.com/sirupsen/logrus"
)

// CommandBuilder produces a firmware by running an external build command,
// e.g. arduino-cli compile, and then picking the image from its output
// directory.
type CommandBuilder struct {
	Command    []string
	Dir        *paths.Path
	OutputDir  *paths.Path
	Extensions []string
	Logger     logrus.FieldLogger
}

// Build runs the command and returns the produced firmware.
func (b *CommandBuilder) Build(ctx context.Context) (*paths.Path, error) {
	const message = "Build failed"
	if len(b.Command) == 0 {
		return nil, remote.NewError(remote.BuildFailed, message, "no build command configured")
	}
	logger := b.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	logger.WithField("command", strings.Join(b.Command, " ")).Info("Building firmware")

	proc, err := executils.NewProcess(nil, b.Command...)
	if err != nil {
		return nil, &remote.Error{Kind: remote.BuildFailed, Message: message, Detail: err.Error(), Err: err}
	}
	if b.Dir != nil {
		proc.SetDir(b.Dir.String())
	}
	stdout, stderr, err := proc.RunAndCaptureOutput(ctx)
	logger.Debugf("Build output: %s", stdout)
	if err != nil {
		if ctx.Err() != nil {
			return nil, &remote.Error{Kind: remote.Aborted, Message: message, Detail: "build canceled", Err: ctx.Err()}
		}
		detail := lastLine(string(stderr))
		if detail == "" {
			detail = err.Error()
		}
		return nil, &remote.Error{Kind: remote.BuildFailed, Message: message, Detail: detail, Err: err}
	}

	out := b.OutputDir
	if out == nil {
		out = b.Dir
	}
	if out == nil {
		out = paths.New(".")
	}
	exts := b.Extensions
	if len(exts) == 0 {
		exts = DefaultExtensions
	}
	fw, err := Discover(out, exts)
	if err != nil {
		var rerr *remote.Error
		if errors.As(err, &rerr) {
			return nil, &remote.Error{Kind: remote.BuildFailed, Message: message, Detail: "the build produced no firmware: " + rerr.Detail, Err: err}
		}
		return nil, err
	}
	logger.WithField("firmware", fw).Info("Build completed")
	return fw, nil
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}
