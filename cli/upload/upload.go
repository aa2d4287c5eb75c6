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

package upload

import (
	"context"
	"os"

	"github.com/openblockcc/remote-flasher/cli/arguments"
	"github.com/openblockcc/remote-flasher/cli/common"
	"github.com/openblockcc/remote-flasher/cli/feedback"
	"github.com/openblockcc/remote-flasher/remote"
	"github.com/spf13/cobra"
)

var (
	commonFlags arguments.Flags
	fwFile      string
	fwURL       string
	stream      bool
)

// NewCommand created a new `upload` command
func NewCommand() *cobra.Command {
	command := &cobra.Command{
		Use:   "upload",
		Short: "Uploads a firmware in a single request.",
		Long: "Sends the firmware to the remote flasher and waits for its report, " +
			"without the connection check and the reset sequence of the flash command.",
		Example: "" +
			"  " + os.Args[0] + " upload -b arduino:avr:uno -i Blink.ino.hex\n" +
			"  " + os.Args[0] + " upload -b arduino:avr:uno -i Blink.ino.hex --stream\n" +
			"  " + os.Args[0] + " upload -b arduino:avr:uno --url https://example.com/Blink.ino.hex\n",
		Args: cobra.NoArgs,
		Run:  runUpload,
	}
	commonFlags.AddToCommand(command)
	command.Flags().StringVarP(&fwFile, "input-file", "i", "", "Path of the firmware to upload")
	command.Flags().StringVar(&fwURL, "url", "", "URL the remote flasher downloads the firmware from")
	command.Flags().BoolVar(&stream, "stream", false, "Print the output of the remote flasher while it runs")
	return command
}

func runUpload(cmd *cobra.Command, args []string) {
	if (fwFile == "") == (fwURL == "") {
		feedback.Fatal("Exactly one of --input-file and --url is required", feedback.ErrBadArgument)
	}
	if stream && fwURL != "" {
		feedback.Fatal("--stream works only with --input-file", feedback.ErrBadArgument)
	}
	client := common.NewClient(common.LoadConfig())
	opts := commonFlags.Options()
	ctx := context.Background()

	var res *remote.Result
	var err error
	switch {
	case fwURL != "":
		res, err = client.FlashURL(ctx, fwURL, opts)
	case stream:
		res, err = client.FlashFileStream(ctx, fwFile, opts, feedback.Stdout())
	default:
		res, err = client.FlashFile(ctx, fwFile, opts)
	}
	if err != nil {
		feedback.FatalRemoteError(err)
	}
	feedback.PrintResult(common.RemoteResult{Result: res})
}
