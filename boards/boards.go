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

// Package boards maps an Arduino FQBN to the device options the remote
// flasher service needs to program it.
package boards

import (
	_ "embed"
	"fmt"
	"sort"
	"strings"

	"github.com/openblockcc/remote-flasher/remote"
	"gopkg.in/yaml.v3"
)

//go:embed boards.yaml
var builtin []byte

// Table is a set of known boards.
type Table struct {
	Defaults remote.Options            `yaml:"defaults"`
	Boards   map[string]remote.Options `yaml:"boards"`
	Ports    map[string]string         `yaml:"ports"`
}

var defaultTable = mustParse(builtin)

func mustParse(data []byte) *Table {
	t, err := Parse(data)
	if err != nil {
		panic(err)
	}
	return t
}

// Parse reads a board table in YAML form.
func Parse(data []byte) (*Table, error) {
	t := &Table{}
	if err := yaml.Unmarshal(data, t); err != nil {
		return nil, fmt.Errorf("parsing board table: %w", err)
	}
	return t, nil
}

// Default returns the built-in board table.
func Default() *Table {
	return defaultTable
}

// Lookup returns the options for fqbn. Board menu options are ignored and
// unknown boards get the table defaults. The second return value reports
// whether the board is known.
func (t *Table) Lookup(fqbn string) (remote.Options, bool) {
	opts, ok := t.Boards[boardID(fqbn)]
	return opts.Merge(t.Defaults), ok
}

// ResolvePort replaces a placeholder port name with the real one.
func (t *Table) ResolvePort(port string) string {
	if mapped, ok := t.Ports[port]; ok {
		return mapped
	}
	return port
}

// Options builds the options sent to the service for fqbn. Explicit values
// in override win over the table.
func (t *Table) Options(fqbn string, override remote.Options) remote.Options {
	var opts remote.Options
	if fqbn == "" {
		opts = override.Merge(t.Defaults)
	} else {
		board, _ := t.Lookup(fqbn)
		opts = override.Merge(board)
	}
	opts.Port = t.ResolvePort(opts.Port)
	return opts
}

// FQBNs lists the known boards, sorted.
func (t *Table) FQBNs() []string {
	res := make([]string, 0, len(t.Boards))
	for fqbn := range t.Boards {
		res = append(res, fqbn)
	}
	sort.Strings(res)
	return res
}

// Lookup searches the built-in table.
func Lookup(fqbn string) (remote.Options, bool) {
	return defaultTable.Lookup(fqbn)
}

func boardID(fqbn string) string {
	parts := strings.SplitN(fqbn, ":", 4)
	if len(parts) > 3 {
		parts = parts[:3]
	}
	return strings.Join(parts, ":")
}
