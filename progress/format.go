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

package progress

import "strings"

// Output lines are printed by avrdude on the remote host; the most
// interesting ones get their own marker.
var outputMarkers = []struct {
	marker  string
	matches func(msg string) bool
}{
	{"[avrdude]", func(m string) bool { return strings.Contains(m, "avrdude: Version") }},
	{"[device]", func(m string) bool { return strings.Contains(m, "device signature") }},
	{"[write]", func(m string) bool { return strings.Contains(m, "writing") && strings.Contains(m, "flash") }},
	{"[....]", func(m string) bool { return strings.Contains(m, "Writing |") || strings.Contains(m, "Reading |") }},
	{"[ok]", func(m string) bool { return strings.Contains(m, "bytes of flash written") }},
	{"[ok]", func(m string) bool { return strings.Contains(m, "bytes of flash verified") }},
	{"[done]", func(m string) bool { return strings.Contains(m, "avrdude done") }},
}

// Format renders an event as a single display line.
func Format(e Event) string {
	switch e.Type {
	case Info:
		return "[info] " + e.Message
	case Success:
		return "[done] " + e.Message
	case Error:
		return "[error] " + e.Message
	}
	for _, m := range outputMarkers {
		if m.matches(e.Message) {
			return m.marker + " " + e.Message
		}
	}
	return "       " + e.Message
}
