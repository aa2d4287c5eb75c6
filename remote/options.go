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

package remote

import (
	"net/url"
	"strconv"

	"github.com/openblockcc/remote-flasher/transport"
)

// Options selects the target device on the remote host. Every field is
// optional and only the fields that are set are sent to the service.
type Options struct {
	MCU        string `json:"mcu,omitempty" yaml:"mcu"`
	Programmer string `json:"programmer,omitempty" yaml:"programmer"`
	Port       string `json:"port,omitempty" yaml:"port"`
	BaudRate   int    `json:"baudrate,omitempty" yaml:"baudrate"`
}

// Fields returns the options as ordered name/value pairs.
func (o Options) Fields() []transport.Field {
	var fields []transport.Field
	if o.MCU != "" {
		fields = append(fields, transport.Field{Name: "mcu", Value: o.MCU})
	}
	if o.Programmer != "" {
		fields = append(fields, transport.Field{Name: "programmer", Value: o.Programmer})
	}
	if o.Port != "" {
		fields = append(fields, transport.Field{Name: "port", Value: o.Port})
	}
	if o.BaudRate > 0 {
		fields = append(fields, transport.Field{Name: "baudrate", Value: strconv.Itoa(o.BaudRate)})
	}
	return fields
}

// Query returns the options encoded as a query string.
func (o Options) Query() url.Values {
	q := url.Values{}
	for _, f := range o.Fields() {
		q.Set(f.Name, f.Value)
	}
	return q
}

// Merge returns o with the unset fields taken from def.
func (o Options) Merge(def Options) Options {
	if o.MCU == "" {
		o.MCU = def.MCU
	}
	if o.Programmer == "" {
		o.Programmer = def.Programmer
	}
	if o.Port == "" {
		o.Port = def.Port
	}
	if o.BaudRate <= 0 {
		o.BaudRate = def.BaudRate
	}
	return o
}

// IsZero reports whether no option is set.
func (o Options) IsZero() bool {
	return o == Options{}
}
