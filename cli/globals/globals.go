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

package globals

import (
	"github.com/openblockcc/remote-flasher/config"
	"github.com/spf13/viper"
)

var (
	// Verbose is true when logs are printed on stdout
	Verbose bool
	// LogLevel is the minimum level of the logged messages
	LogLevel string
	// DataDir holds the configuration file and the history database
	DataDir = config.DefaultDataDir().String()
	// Settings is the configuration store, ready once the root command pre-run completes
	Settings *viper.Viper
	// ServerURLOverride is true when --server-url was given
	ServerURLOverride bool
)
