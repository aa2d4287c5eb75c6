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

package device

import (
	"context"
	"os"
	"time"

	"github.com/openblockcc/remote-flasher/cli/arguments"
	"github.com/openblockcc/remote-flasher/cli/common"
	"github.com/openblockcc/remote-flasher/cli/feedback"
	"github.com/spf13/cobra"
)

// NewCommand created a new `device` command
func NewCommand() *cobra.Command {
	command := &cobra.Command{
		Use:     "device",
		Short:   "Device commands.",
		Long:    "A subset of commands to inspect and control the device attached to the remote flasher.",
		Example: "  " + os.Args[0] + " device <command> [flags...]",
		Args:    cobra.NoArgs,
	}
	command.AddCommand(newInfoCommand())
	command.AddCommand(newResetCommand())
	return command
}

func newInfoCommand() *cobra.Command {
	var flags arguments.Flags
	command := &cobra.Command{
		Use:     "info",
		Short:   "Shows the device attached to the remote flasher.",
		Example: "  " + os.Args[0] + " device info -b arduino:avr:uno -p remote-flasher-device",
		Args:    cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			client := common.NewClient(common.LoadConfig())
			opts := flags.Explicit()
			if flags.Fqbn != "" {
				opts = flags.Options()
			}
			res, err := client.DeviceInfo(context.Background(), opts)
			if err != nil {
				feedback.FatalRemoteError(err)
			}
			feedback.PrintResult(common.RemoteResult{Result: res})
		},
	}
	flags.AddToCommand(command)
	return command
}

func newResetCommand() *cobra.Command {
	var release bool
	var duration time.Duration
	command := &cobra.Command{
		Use:   "reset",
		Short: "Drives the reset line of the device.",
		Long:  "Asserts the reset line of the device for the given duration, or releases it with --release.",
		Example: "" +
			"  " + os.Args[0] + " device reset --duration 500ms\n" +
			"  " + os.Args[0] + " device reset --release\n",
		Args: cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			client := common.NewClient(common.LoadConfig())
			res, err := client.ControlReset(context.Background(), !release, duration)
			if err != nil {
				feedback.FatalRemoteError(err)
			}
			if res.Message == "" {
				res.Message = "Reset asserted"
				if release {
					res.Message = "Reset released"
				}
			}
			feedback.PrintResult(common.RemoteResult{Result: res})
		},
	}
	command.Flags().BoolVar(&release, "release", false, "Release the reset line instead of asserting it")
	command.Flags().DurationVar(&duration, "duration", 200*time.Millisecond, "How long the reset line is held")
	return command
}
