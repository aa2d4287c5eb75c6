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

package firmware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"runtime"
	"testing"

	"github.com/arduino/go-paths-helper"
	"github.com/openblockcc/remote-flasher/remote"
	"github.com/stretchr/testify/require"
)

func buildDir(t *testing.T, files ...string) *paths.Path {
	dir := paths.New(t.TempDir())
	for _, f := range files {
		require.NoError(t, dir.Join(f).WriteFile([]byte(":00000001FF\n")))
	}
	return dir
}

func TestResolveOverrideWins(t *testing.T) {
	dir := buildDir(t, "Blink.ino.hex")
	override := buildDir(t, "custom.hex").Join("custom.hex")
	artifact := buildDir(t, "artifact.hex").Join("artifact.hex")
	r := &Resolver{BuildDir: dir}

	fw, err := r.Resolve(context.Background(), override.String(), artifact.String())
	require.NoError(t, err)
	require.Equal(t, override.String(), fw.String())

	fw, err = r.Resolve(context.Background(), "", artifact.String())
	require.NoError(t, err)
	require.Equal(t, artifact.String(), fw.String())

	fw, err = r.Resolve(context.Background(), "", "")
	require.NoError(t, err)
	require.Equal(t, "Blink.ino.hex", fw.Base())
}

func TestResolveMissingOverride(t *testing.T) {
	r := &Resolver{BuildDir: buildDir(t, "Blink.ino.hex")}
	_, err := r.Resolve(context.Background(), "/nonexistent/sketch.hex", "")
	require.True(t, remote.IsKind(err, remote.FileNotFound))

	// a directory is not a firmware
	_, err = r.Resolve(context.Background(), r.BuildDir.String(), "")
	require.True(t, remote.IsKind(err, remote.FileNotFound))
}

func TestResolveNoBuildDir(t *testing.T) {
	_, err := (&Resolver{}).Resolve(context.Background(), "", "")
	var rerr *remote.Error
	require.ErrorAs(t, err, &rerr)
	require.Equal(t, remote.FileNotFound, rerr.Kind)
	require.Equal(t, "No firmware found for flashing", rerr.Message)
}

func TestDiscover(t *testing.T) {
	dir := buildDir(t, "b.hex", "a.hex", "notes.txt", "sketch.bin")
	require.NoError(t, dir.Join("z.hex").MkdirAll())

	fw, err := Discover(dir, DefaultExtensions)
	require.NoError(t, err)
	require.Equal(t, "a.hex", fw.Base())

	fw, err = Discover(dir, []string{".bin"})
	require.NoError(t, err)
	require.Equal(t, "sketch.bin", fw.Base())

	_, err = Discover(buildDir(t, "notes.txt"), DefaultExtensions)
	require.True(t, remote.IsKind(err, remote.FileNotFound))

	_, err = Discover(dir.Join("missing"), DefaultExtensions)
	require.True(t, remote.IsKind(err, remote.FileNotFound))
}

func TestProjectBuildDir(t *testing.T) {
	data := paths.New("/home/user/.openblock")
	require.Equal(t,
		paths.New("/home/user/.openblock", "arduino", "arduino_avr_uno", "build").String(),
		ProjectBuildDir(data, "arduino:avr:uno").String())
	require.Equal(t,
		paths.New("/home/user/.openblock", "arduino", "arduino_avr_mega", "build").String(),
		ProjectBuildDir(data, "arduino:avr:mega:cpu=atmega2560").String())
}

func TestRealtimeFirmware(t *testing.T) {
	fw := RealtimeFirmware(paths.New("/opt/openblock", "tools"), "uno.standardFirmata.ino.hex")
	require.Equal(t, paths.New("/opt/openblock", "firmwares", "arduino", "uno.standardFirmata.ino.hex").String(), fw.String())
}

func TestIsURL(t *testing.T) {
	require.True(t, IsURL("http://example.com/fw.hex"))
	require.True(t, IsURL("https://example.com/fw.hex"))
	require.False(t, IsURL("/tmp/fw.hex"))
	require.False(t, IsURL("ftp://example.com/fw.hex"))
}

const firmwareContent = ":100000000C9434000C943E000C943E000C943E0082\n"

// sha256 of firmwareContent
func firmwareChecksum(t *testing.T) string {
	f := paths.New(t.TempDir(), "fw.hex")
	require.NoError(t, f.WriteFile([]byte(firmwareContent)))
	sum, err := Checksum(f)
	require.NoError(t, err)
	return sum
}

func firmwareServer(t *testing.T) *httptest.Server {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/firmwares/Blink.ino.hex" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(firmwareContent))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestResolveDownload(t *testing.T) {
	srv := firmwareServer(t)
	r := &Resolver{DownloadDir: paths.New(t.TempDir())}

	fw, err := r.Resolve(context.Background(), srv.URL+"/firmwares/Blink.ino.hex#"+firmwareChecksum(t), "")
	require.NoError(t, err)
	require.Equal(t, "Blink.ino.hex", fw.Base())
	data, err := fw.ReadFile()
	require.NoError(t, err)
	require.Equal(t, firmwareContent, string(data))

	// downloading again overwrites the previous copy
	fw, err = r.Download(context.Background(), srv.URL+"/firmwares/Blink.ino.hex")
	require.NoError(t, err)
	data, err = fw.ReadFile()
	require.NoError(t, err)
	require.Equal(t, firmwareContent, string(data))
}

func TestDownloadChecksumMismatch(t *testing.T) {
	srv := firmwareServer(t)
	r := &Resolver{DownloadDir: paths.New(t.TempDir())}
	bad := "SHA-256:0000000000000000000000000000000000000000000000000000000000000000"
	_, err := r.Download(context.Background(), srv.URL+"/firmwares/Blink.ino.hex#"+bad)
	require.True(t, remote.IsKind(err, remote.ProtocolError))
}

func TestDownloadNotFound(t *testing.T) {
	srv := firmwareServer(t)
	r := &Resolver{DownloadDir: paths.New(t.TempDir())}
	_, err := r.Download(context.Background(), srv.URL+"/firmwares/missing.hex")
	var rerr *remote.Error
	require.ErrorAs(t, err, &rerr)
	require.Equal(t, remote.ConnectionFailed, rerr.Kind)
	require.Contains(t, rerr.Detail, "404")
}

func TestVerifyFileChecksum(t *testing.T) {
	f := paths.New(t.TempDir(), "fw.hex")
	require.NoError(t, f.WriteFile([]byte("test")))
	require.NoError(t, VerifyFileChecksum("SHA-256:9f86d081884c7d659a2feaa0c55ad015a3bf4f1b2b0b822cd15d6c15b0f00a08", f))
	require.NoError(t, VerifyFileChecksum("SHA-1:a94a8fe5ccb19ba61c4c0873d391e987982fbbd3", f))
	require.NoError(t, VerifyFileChecksum("MD5:098f6bcd4621d373cade4e832627b4f6", f))

	require.Error(t, VerifyFileChecksum("", f))
	require.Error(t, VerifyFileChecksum("SHA-256", f))
	require.Error(t, VerifyFileChecksum("SHA-256:zz", f))
	require.Error(t, VerifyFileChecksum("CRC32:d87f7e0c", f))
	require.Error(t, VerifyFileChecksum("MD5:00000000000000000000000000000000", f))
	require.Error(t, VerifyFileChecksum("MD5:098f6bcd4621d373cade4e832627b4f6", f.Parent().Join("missing")))
}

func TestCommandBuilder(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("needs a POSIX shell")
	}
	dir := paths.New(t.TempDir())
	out := dir.Join("build")
	require.NoError(t, out.MkdirAll())

	b := &CommandBuilder{
		Command:   []string{"sh", "-c", "printf ':00000001FF\\n' > build/Blink.ino.hex"},
		Dir:       dir,
		OutputDir: out,
	}
	fw, err := b.Build(context.Background())
	require.NoError(t, err)
	require.Equal(t, out.Join("Blink.ino.hex").String(), fw.String())
}

func TestCommandBuilderFailure(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("needs a POSIX shell")
	}
	b := &CommandBuilder{
		Command: []string{"sh", "-c", "echo compiling >&2; echo 'Blink.ino:3: error: expected ;' >&2; exit 1"},
		Dir:     paths.New(t.TempDir()),
	}
	_, err := b.Build(context.Background())
	var rerr *remote.Error
	require.ErrorAs(t, err, &rerr)
	require.Equal(t, remote.BuildFailed, rerr.Kind)
	require.Equal(t, "Blink.ino:3: error: expected ;", rerr.Detail)

	// success without an image is still a failed build
	b.Command = []string{"true"}
	_, err = b.Build(context.Background())
	require.True(t, remote.IsKind(err, remote.BuildFailed))

	_, err = (&CommandBuilder{}).Build(context.Background())
	require.True(t, remote.IsKind(err, remote.BuildFailed))
}
