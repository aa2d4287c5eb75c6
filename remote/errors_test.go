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
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/openblockcc/remote-flasher/transport"
	"github.com/stretchr/testify/require"
)

func TestFromTransport(t *testing.T) {
	terr := &transport.Error{
		Kind:     transport.Timeout,
		Op:       "GET /status",
		Err:      errors.New("i/o timeout"),
		Fallback: errors.New("curl failed with code 28"),
	}
	rerr := fromTransport(msgStatus, terr)
	require.Equal(t, Timeout, rerr.Kind)
	require.Equal(t, "Failed to connect to remote flasher server: GET /status: i/o timeout (fallback: curl failed with code 28)", rerr.Error())
	require.ErrorIs(t, rerr, terr.Err)

	require.Equal(t, Aborted, fromTransport("x", context.Canceled).Kind)
	require.Equal(t, Timeout, fromTransport("x", context.DeadlineExceeded).Kind)
	require.Equal(t, ConnectionFailed, fromTransport("x", errors.New("boom")).Kind)
	require.Equal(t, InvalidResponse, fromTransport("x", &transport.Error{Kind: transport.MalformedResponse, Err: errors.New("bad")}).Kind)
}

func TestKindOfWrapped(t *testing.T) {
	err := fmt.Errorf("flashing: %w", NewError(BuildFailed, "Build failed", "exit status 1"))
	kind, ok := KindOf(err)
	require.True(t, ok)
	require.Equal(t, BuildFailed, kind)
	require.True(t, IsKind(err, BuildFailed))

	_, ok = KindOf(errors.New("plain"))
	require.False(t, ok)
	require.False(t, IsKind(nil, Aborted))
}

func TestKindString(t *testing.T) {
	require.Equal(t, "ConnectionFailed", ConnectionFailed.String())
	require.Equal(t, "DnsFailure", DNSFailure.String())
	require.Equal(t, "FileNotFound", FileNotFound.String())
	require.Equal(t, "Kind(99)", Kind(99).String())
	text, err := Aborted.MarshalText()
	require.NoError(t, err)
	require.Equal(t, "Aborted", string(text))
	require.False(t, FlashFailed.IsNetwork())
}
