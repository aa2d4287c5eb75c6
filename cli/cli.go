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

package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/arduino/go-paths-helper"
	"github.com/mattn/go-colorable"
	"github.com/openblockcc/remote-flasher/cli/config"
	"github.com/openblockcc/remote-flasher/cli/device"
	"github.com/openblockcc/remote-flasher/cli/feedback"
	"github.com/openblockcc/remote-flasher/cli/flash"
	"github.com/openblockcc/remote-flasher/cli/globals"
	"github.com/openblockcc/remote-flasher/cli/history"
	"github.com/openblockcc/remote-flasher/cli/server"
	"github.com/openblockcc/remote-flasher/cli/upload"
	"github.com/openblockcc/remote-flasher/cli/version"
	settings "github.com/openblockcc/remote-flasher/config"
	v "github.com/openblockcc/remote-flasher/version"
	"github.com/rifflock/lfshook"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	outputFormat string
	logFile      string
	logFormat    string
	serverURL    string
)

// NewCommand creates the remote-flasher root command
func NewCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "remote-flasher",
		Short: "remote-flasher.",
		Long: "remote-flasher flashes boards attached to a remote flasher service, " +
			"such as a Raspberry Pi sitting next to the device.",
		Example:          "  " + os.Args[0] + " <command> [flags...]",
		Args:             cobra.NoArgs,
		PersistentPreRun: preRun,
	}

	rootCmd.AddCommand(version.NewCommand())
	rootCmd.AddCommand(flash.NewCommand())
	rootCmd.AddCommand(upload.NewCommand())
	rootCmd.AddCommand(server.NewStatusCommand())
	rootCmd.AddCommand(server.NewConfigCommand())
	rootCmd.AddCommand(server.NewTestConnectionCommand())
	rootCmd.AddCommand(device.NewCommand())
	rootCmd.AddCommand(config.NewCommand())
	rootCmd.AddCommand(history.NewCommand())

	rootCmd.PersistentFlags().StringVar(&outputFormat, "format", "text", "The output format, can be {text|json}.")

	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "Path to the file where logs will be written")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "The output format for the logs, can be {text|json}.")
	rootCmd.PersistentFlags().StringVar(&globals.LogLevel, "log-level", "info", "Messages with this level and above will be logged. Valid levels are: trace, debug, info, warn, error, fatal, panic")
	rootCmd.PersistentFlags().BoolVarP(&globals.Verbose, "verbose", "v", false, "Print the logs on the standard output.")

	rootCmd.PersistentFlags().StringVar(&globals.DataDir, "config", globals.DataDir, "Directory holding "+settings.FileName+" and the flash history")
	rootCmd.PersistentFlags().StringVar(&serverURL, "server-url", "", "Address of the remote flasher, e.g.: http://raspberrypi.local:5000")

	return rootCmd
}

// Convert the string passed to the `--log-level` option to the corresponding
// logrus formal level.
func toLogLevel(s string) (t logrus.Level, found bool) {
	t, found = map[string]logrus.Level{
		"trace": logrus.TraceLevel,
		"debug": logrus.DebugLevel,
		"info":  logrus.InfoLevel,
		"warn":  logrus.WarnLevel,
		"error": logrus.ErrorLevel,
		"fatal": logrus.FatalLevel,
		"panic": logrus.PanicLevel,
	}[s]

	return
}

func preRun(cmd *cobra.Command, args []string) {
	// Prepare logging
	if globals.Verbose {
		// if we print on stdout, do it in full colors
		logrus.SetOutput(colorable.NewColorableStdout())
		logrus.SetFormatter(&logrus.TextFormatter{
			ForceColors: true,
		})
	} else {
		logrus.SetOutput(io.Discard)
	}

	// Normalize the format strings
	logFormat = strings.ToLower(logFormat)
	if logFormat == "json" {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	}

	if logFile != "" {
		writer := &lumberjack.Logger{
			Filename:   logFile,
			MaxSize:    10, // megabytes
			MaxBackups: 3,
			MaxAge:     28, // days
			LocalTime:  true,
		}

		// Use a hook so we don't get color codes in the log file
		if logFormat == "json" {
			logrus.AddHook(lfshook.NewHook(writer, &logrus.JSONFormatter{}))
		} else {
			logrus.AddHook(lfshook.NewHook(writer, &logrus.TextFormatter{}))
		}
	}

	// Configure logging filter
	if lvl, found := toLogLevel(globals.LogLevel); !found {
		feedback.Fatal(fmt.Sprintf("Invalid option for --log-level: %s", globals.LogLevel), feedback.ErrBadArgument)
	} else {
		logrus.SetLevel(lvl)
	}

	//
	// Prepare the Feedback system
	//

	// normalize the format strings
	outputFormat = strings.ToLower(outputFormat)
	// check the right output format was passed
	format, found := feedback.ParseOutputFormat(outputFormat)
	if !found {
		feedback.Fatal(fmt.Sprintf("Invalid output format: %s", outputFormat), feedback.ErrBadArgument)
	}

	// use the output format to configure the Feedback
	feedback.SetFormat(format)

	logrus.Info(v.VersionInfo)

	if outputFormat != "text" {
		cmd.SetHelpFunc(func(cmd *cobra.Command, args []string) {
			logrus.Warn("Calling help on JSON format")
			feedback.Fatal("Invalid Call : should show Help, but it is available only in TEXT mode.", feedback.ErrBadArgument)
		})
	}

	//
	// Prepare the settings
	//
	globals.Settings = settings.New(paths.New(globals.DataDir))
	if err := globals.Settings.BindPFlag("serverUrl", cmd.Flags().Lookup("server-url")); err != nil {
		feedback.FatalError(err, feedback.ErrGeneric)
	}
	globals.ServerURLOverride = cmd.Flags().Changed("server-url")
}
