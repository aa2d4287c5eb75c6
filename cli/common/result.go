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

package common

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/arduino/arduino-cli/table"
	"github.com/openblockcc/remote-flasher/remote"
)

// RemoteResult prints the outcome of a remote call. Flat JSON objects are
// shown as a table in text mode.
type RemoteResult struct {
	*remote.Result
}

// Data implements feedback.Result interface
func (r RemoteResult) Data() interface{} {
	return r.Result
}

func (r RemoteResult) String() string {
	switch payload := r.Payload.(type) {
	case nil:
		return r.Message
	case string:
		return join(r.Message, payload)
	case map[string]interface{}:
		if t := renderFlat(payload); t != "" {
			return join(r.Message, t)
		}
	}
	d, err := json.MarshalIndent(r.Payload, "", "  ")
	if err != nil {
		return r.Message
	}
	return join(r.Message, string(d))
}

func join(msg, body string) string {
	if msg == "" {
		return body
	}
	return msg + "\n" + body
}

// renderFlat renders an object whose values are all scalars, it returns ""
// otherwise.
func renderFlat(obj map[string]interface{}) string {
	keys := make([]string, 0, len(obj))
	for k, v := range obj {
		switch v.(type) {
		case map[string]interface{}, []interface{}:
			return ""
		}
		keys = append(keys, k)
	}
	if len(keys) == 0 {
		return ""
	}
	sort.Strings(keys)
	t := table.New()
	for _, k := range keys {
		t.AddRow(k, fmt.Sprint(obj[k]))
	}
	return t.Render()
}
