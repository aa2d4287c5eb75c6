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

package history

import (
	"context"
	"os"
	"time"

	"github.com/arduino/arduino-cli/table"
	"github.com/arduino/go-paths-helper"
	"github.com/openblockcc/remote-flasher/cli/common"
	"github.com/openblockcc/remote-flasher/cli/feedback"
	"github.com/openblockcc/remote-flasher/session"
	"github.com/spf13/cobra"
)

// NewCommand created a new `history` command
func NewCommand() *cobra.Command {
	var limit int
	command := &cobra.Command{
		Use:     "history",
		Short:   "Lists the past flash sessions.",
		Example: "  " + os.Args[0] + " history --limit 5",
		Args:    cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			store := common.OpenHistory(common.LoadConfig(), true)
			defer store.Close()
			reports, err := store.List(context.Background(), limit)
			if err != nil {
				feedback.FatalError(err, feedback.ErrGeneric)
			}
			feedback.PrintResult(historyResult(reports))
		},
	}
	command.Flags().IntVar(&limit, "limit", 20, "Maximum number of sessions listed, 0 for all")
	return command
}

type historyResult []*session.Report

func (h historyResult) Data() interface{} {
	return h
}

func (h historyResult) String() string {
	if len(h) == 0 {
		return "No flash sessions recorded."
	}
	t := table.New()
	t.SetHeader("Started", "Duration", "Firmware", "Server", "Result", "Message")
	for _, r := range h {
		result := "ok"
		if !r.Success {
			result = r.Kind
		}
		fw := ""
		if p := paths.New(r.Firmware); p != nil {
			fw = p.Base()
		}
		t.AddRow(
			r.Started.Local().Format(time.DateTime),
			r.Duration.Round(100*time.Millisecond),
			fw,
			r.Server,
			result,
			r.Message,
		)
	}
	return t.Render()
}
