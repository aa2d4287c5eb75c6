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

package arguments

import (
	"github.com/openblockcc/remote-flasher/boards"
	"github.com/openblockcc/remote-flasher/remote"
	"github.com/spf13/cobra"
)

// Flags contains the flags selecting the target device.
// This is useful so all flags used by commands that need
// this information are consistent with each other.
type Flags struct {
	Fqbn       string
	MCU        string
	Programmer string
	Port       string
	BaudRate   int
}

// AddToCommand adds the device selection flags to the specified Command
func (f *Flags) AddToCommand(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.Fqbn, "fqbn", "b", "", "Fully Qualified Board Name, e.g.: arduino:avr:uno, arduino:avr:mega")
	cmd.Flags().StringVar(&f.MCU, "mcu", "", "Microcontroller of the target, overrides the one of the board, e.g.: atmega328p")
	cmd.Flags().StringVar(&f.Programmer, "programmer", "", "Programmer used by the remote flasher, e.g.: arduino")
	cmd.Flags().StringVarP(&f.Port, "port", "p", "", "Serial port on the remote host, e.g.: /dev/ttyUSB0, remote-flasher-device")
	cmd.Flags().IntVar(&f.BaudRate, "baudrate", 0, "Baud rate of the bootloader, e.g.: 115200")
}

// Options returns the device options, filling what was not given on the
// command line from the board table.
func (f *Flags) Options() remote.Options {
	return boards.Default().Options(f.Fqbn, f.explicit())
}

// Explicit returns only the options given on the command line.
func (f *Flags) Explicit() remote.Options {
	opts := f.explicit()
	opts.Port = boards.Default().ResolvePort(opts.Port)
	return opts
}

func (f *Flags) explicit() remote.Options {
	return remote.Options{MCU: f.MCU, Programmer: f.Programmer, Port: f.Port, BaudRate: f.BaudRate}
}
