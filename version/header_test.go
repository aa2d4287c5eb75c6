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

package version

import (
	"testing"

	"github.com/arduino/go-paths-helper"
	"github.com/stretchr/testify/require"
)

func TestSourceHeaders(t *testing.T) {
	root := paths.New("..")
	files, err := root.ReadDirRecursiveFiltered(
		paths.FilterOutPrefixes("_", "."),
		paths.FilterOutDirectories(),
		paths.FilterSuffixes(".go"),
	)
	require.NoError(t, err)
	require.NotEmpty(t, files)
	for _, f := range files {
		data, err := f.ReadFile()
		require.NoError(t, err)
		require.Contains(t, string(data), "\tremote-flasher\n\tCopyright (c) 2026 OpenBlock Community.  All right reserved.\n", f.String())
	}
}
