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

package config

import (
	"fmt"
	"os"
	"time"

	"github.com/arduino/arduino-cli/table"
	"github.com/arduino/go-paths-helper"
	"github.com/openblockcc/remote-flasher/cli/common"
	"github.com/openblockcc/remote-flasher/cli/feedback"
	"github.com/openblockcc/remote-flasher/cli/globals"
	settings "github.com/openblockcc/remote-flasher/config"
	"github.com/openblockcc/remote-flasher/remote"
	"github.com/openblockcc/remote-flasher/transport"
	"github.com/spf13/cobra"
)

// NewCommand created a new `config` command
func NewCommand() *cobra.Command {
	command := &cobra.Command{
		Use:     "config",
		Short:   "Configuration commands.",
		Long:    "A subset of commands to show and change the remote flasher configuration.",
		Example: "  " + os.Args[0] + " config <command> [flags...]",
		Args:    cobra.NoArgs,
	}
	command.AddCommand(newShowCommand())
	command.AddCommand(newSetCommand())
	return command
}

func newShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "show",
		Short:   "Shows the configuration in use.",
		Example: "  " + os.Args[0] + " config show",
		Args:    cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			cfg := common.LoadConfig()
			feedback.PrintResult(&showResult{
				File:   paths.New(globals.DataDir, settings.FileName).String(),
				Config: cfg,
			})
		},
	}
}

func newSetCommand() *cobra.Command {
	var enabled bool
	command := &cobra.Command{
		Use:   "set",
		Short: "Turns the remote flasher on or off and sets its address.",
		Example: "" +
			"  " + os.Args[0] + " config set --enabled --server-url http://raspberrypi.local:5000\n" +
			"  " + os.Args[0] + " config set --enabled=false\n",
		Args: cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			// --server-url is already merged in the loaded configuration
			current := common.LoadConfig().Remote()
			if cmd.Flags().Changed("enabled") {
				current.Enabled = enabled
			}
			if current.ServerURL != "" {
				if _, err := remote.ParseEndpoint(current.ServerURL, transport.DefaultTimeouts()); err != nil {
					feedback.Fatal(err.Error(), feedback.ErrBadArgument)
				}
			}
			if err := settings.Save(paths.New(globals.DataDir), current, time.Now()); err != nil {
				feedback.Fatal(fmt.Sprintf("Error saving configuration: %s", err), feedback.ErrGeneric)
			}
			state := "disabled"
			if current.Active() {
				state = "enabled"
			}
			feedback.Print(fmt.Sprintf("Remote flasher %s (%s)", state, current.ServerURL))
		},
	}
	command.Flags().BoolVar(&enabled, "enabled", false, "Use the remote flasher")
	return command
}

type showResult struct {
	File   string           `json:"file"`
	Config *settings.Config `json:"config"`
}

func (r *showResult) Data() interface{} {
	return r
}

func (r *showResult) String() string {
	c := r.Config
	t := table.New()
	t.AddRow("Configuration file", r.File)
	t.AddRow("Enabled", c.Enabled)
	t.AddRow("Server URL", c.ServerURL)
	t.AddRow("Last updated", c.LastUpdated)
	t.AddRow("Timeouts", fmt.Sprintf("connect %s, request %s, upload %s", c.ConnectTimeout, c.Timeout, c.UploadTimeout))
	t.AddRow("Curl", c.CurlPath)
	t.AddRow("Curl fallback", c.Fallback)
	t.AddRow("Reset pulses", fmt.Sprintf("bootloader %s, settle %s, release %s, restart %s",
		c.Reset.BootloaderPulse, c.Reset.BootloaderSettle, c.Reset.ReleasePulse, c.Reset.RestartPulse))
	t.AddRow("Build dir", c.BuildDir)
	t.AddRow("History", c.HistoryDB)
	return t.Render()
}
