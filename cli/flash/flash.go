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

package flash

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/arduino/go-paths-helper"
	"github.com/openblockcc/remote-flasher/cli/arguments"
	"github.com/openblockcc/remote-flasher/cli/common"
	"github.com/openblockcc/remote-flasher/cli/feedback"
	"github.com/openblockcc/remote-flasher/firmware"
	"github.com/openblockcc/remote-flasher/progress"
	"github.com/openblockcc/remote-flasher/remote"
	"github.com/openblockcc/remote-flasher/session"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	commonFlags arguments.Flags // contains fqbn and device options
	fwFile      string
	buildDir    string
	buildCmd    string
	realtime    string
)

// NewCommand created a new `flash` command
func NewCommand() *cobra.Command {
	command := &cobra.Command{
		Use:   "flash",
		Short: "Flashes a firmware through the remote flasher.",
		Long: "Checks the remote flasher is reachable, puts the device in bootloader mode, " +
			"streams the firmware to the remote flasher and restarts the device.",
		Example: "" +
			"  " + os.Args[0] + " flash -b arduino:avr:uno -i Blink.ino.hex\n" +
			"  " + os.Args[0] + " flash -b arduino:avr:mega --build-dir ./build\n" +
			"  " + os.Args[0] + " flash -b arduino:avr:uno --build-cmd \"arduino-cli compile -b arduino:avr:uno --output-dir build Blink\" --build-dir build\n" +
			"  " + os.Args[0] + " flash -i https://example.com/Blink.ino.hex#SHA-256:<hash>\n",
		Args: cobra.NoArgs,
		Run:  runFlash,
	}
	commonFlags.AddToCommand(command)
	command.Flags().StringVarP(&fwFile, "input-file", "i", "", "Path or URL of the firmware to flash")
	command.Flags().StringVar(&buildDir, "build-dir", "", "Directory scanned for the firmware when no input file is given")
	command.Flags().StringVar(&buildCmd, "build-cmd", "", "Command producing the firmware in the build dir before flashing")
	command.Flags().StringVar(&realtime, "realtime", "", "Name of a prebuilt firmware shipped in the firmwares dir, e.g.: uno.standardFirmata.ino.hex")
	return command
}

func runFlash(cmd *cobra.Command, args []string) {
	cfg := common.LoadConfig()
	client := common.NewClient(cfg)
	resolver := common.NewResolver(cfg, commonFlags.Fqbn, buildDir)
	orchestrator, closeHistory := common.NewOrchestrator(cfg, client, resolver)
	defer closeHistory()

	req := session.FlashRequest{
		Firmware: fwFile,
		Options:  commonFlags.Options(),
	}
	if realtime != "" && fwFile == "" {
		exe, err := os.Executable()
		if err != nil {
			feedback.FatalError(err, feedback.ErrGeneric)
		}
		req.Firmware = firmware.RealtimeFirmware(paths.New(exe).Parent(), realtime).String()
	}
	if buildCmd != "" {
		req.Build = &firmware.CommandBuilder{
			Command:    strings.Fields(buildCmd),
			OutputDir:  resolver.BuildDir,
			Extensions: cfg.FirmwareExtensions,
			Logger:     logrus.StandardLogger(),
		}
	}
	logrus.WithField("options", req.Options).Debug("flash request")

	res, err := run(orchestrator, req, feedback.ProgressSink())
	if err != nil {
		feedback.FatalRemoteError(err)
	}
	feedback.PrintResult(&flashResult{Message: res.Message, Payload: res.Payload})
}

// abortSignals end a flash early: Ctrl-C and the host application closing.
var abortSignals = []os.Signal{os.Interrupt, syscall.SIGTERM}

var notify = signal.Notify

// run executes a session, aborting it on interrupt or termination.
func run(o *session.Orchestrator, req session.FlashRequest, sink progress.Sink) (*remote.Result, error) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s := o.NewSession()
	stop := abortOnSignal(ctx, s, cancel)
	defer stop()

	return s.Run(ctx, req, sink)
}

type aborter interface {
	Abort()
}

// abortOnSignal aborts s and cancels its context, killing any curl child,
// when one of abortSignals arrives before ctx ends.
func abortOnSignal(ctx context.Context, s aborter, cancel context.CancelFunc) (stop func()) {
	signals := make(chan os.Signal, 1)
	notify(signals, abortSignals...)
	go func() {
		select {
		case sig := <-signals:
			logrus.WithField("signal", sig).Warn("Aborting flash")
			s.Abort()
			cancel()
		case <-ctx.Done():
		}
	}()
	return func() { signal.Stop(signals) }
}

type flashResult struct {
	Message string      `json:"message"`
	Payload interface{} `json:"data,omitempty"`
}

func (r *flashResult) Data() interface{} {
	return r
}

func (r *flashResult) String() string {
	// progress already told the story in text mode
	return ""
}
