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

package server

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/openblockcc/remote-flasher/cli/common"
	"github.com/openblockcc/remote-flasher/cli/feedback"
	"github.com/openblockcc/remote-flasher/remote"
	"github.com/spf13/cobra"
)

// NewStatusCommand created a new `status` command
func NewStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "status",
		Short:   "Shows the status of the remote flasher.",
		Example: "  " + os.Args[0] + " status --server-url http://raspberrypi.local:5000",
		Args:    cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			client := common.NewClient(common.LoadConfig())
			printResult(client.GetStatus(context.Background()))
		},
	}
}

// NewConfigCommand created a new `server-config` command
func NewConfigCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "server-config",
		Short:   "Shows the configuration of the remote flasher.",
		Example: "  " + os.Args[0] + " server-config",
		Args:    cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			client := common.NewClient(common.LoadConfig())
			printResult(client.GetConfig(context.Background()))
		},
	}
}

// NewTestConnectionCommand created a new `test-connection` command
func NewTestConnectionCommand() *cobra.Command {
	var wait time.Duration
	command := &cobra.Command{
		Use:   "test-connection",
		Short: "Tests the connection to the remote flasher.",
		Long: "Checks that both the status and the configuration of the remote flasher can be read. " +
			"With --wait, the status is polled until the remote flasher answers.",
		Example: "" +
			"  " + os.Args[0] + " test-connection\n" +
			"  " + os.Args[0] + " test-connection --server-url http://192.168.1.20:5000 --wait 30s\n",
		Args: cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			client := common.NewClient(common.LoadConfig())
			ctx := context.Background()
			if wait > 0 {
				feedback.Print(fmt.Sprintf("Waiting for %s...", client.URL()))
				if _, err := client.WaitForService(ctx, wait, time.Second); err != nil {
					feedback.FatalRemoteError(err)
				}
			}
			res, err := client.TestConnection(ctx)
			if err != nil {
				feedback.FatalRemoteError(err)
			}
			feedback.PrintResult(&connectionResult{URL: client.URL(), Result: res})
		},
	}
	command.Flags().DurationVar(&wait, "wait", 0, "Wait up to this long for the remote flasher to come up, e.g.: 30s")
	return command
}

func printResult(res *remote.Result, err error) {
	if err != nil {
		feedback.FatalRemoteError(err)
	}
	feedback.PrintResult(common.RemoteResult{Result: res})
}

type connectionResult struct {
	URL    string         `json:"url"`
	Result *remote.Result `json:"result"`
}

func (r *connectionResult) Data() interface{} {
	return r
}

func (r *connectionResult) String() string {
	info, ok := r.Result.Payload.(*remote.ServerInfo)
	if !ok {
		return r.Result.Message
	}
	ready := "not reported"
	if r, reported := info.Readiness(); reported {
		ready = "not ready"
		if r {
			ready = "ready"
		}
	}
	version := info.Version()
	if version == "" {
		version = "unknown"
	}
	return fmt.Sprintf("%s at %s\nFlasher: %s\nVersion: %s", r.Result.Message, r.URL, ready, version)
}
