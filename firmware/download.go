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
	"bytes"
	"context"
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"net/url"
	"path"
	"strings"

	"github.com/arduino/go-paths-helper"
	"github.com/openblockcc/remote-flasher/remote"
	"go.bug.st/downloader/v2"
)

// Download fetches a firmware given by URL. A fragment such as
// #SHA-256:<hex> is not sent to the server, it is verified against the
// downloaded file instead.
func (r *Resolver) Download(ctx context.Context, rawURL string) (*paths.Path, error) {
	const message = "Failed to download firmware"
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, remote.NewError(remote.FileNotFound, message, err.Error())
	}
	checksum := u.Fragment
	u.Fragment = ""

	name := path.Base(u.Path)
	if name == "." || name == "/" {
		name = "firmware.hex"
	}
	dir := r.DownloadDir
	if dir == nil {
		dir = paths.TempDir().Join("remote-flasher", "firmwares")
	}
	if err := dir.MkdirAll(); err != nil {
		return nil, remote.NewError(remote.FileNotFound, message, err.Error())
	}
	target := dir.Join(name)
	// the downloader resumes partial files, always start from scratch
	if err := target.WriteFile(nil); err != nil {
		return nil, remote.NewError(remote.FileNotFound, message, err.Error())
	}

	log := r.logger().WithField("url", u.String())
	log.Info("Downloading firmware")
	d, err := downloader.Download(target.String(), u.String())
	if err != nil {
		return nil, &remote.Error{Kind: remote.ConnectionFailed, Message: message, Detail: err.Error(), Err: err}
	}
	if err := run(ctx, d); err != nil {
		return nil, &remote.Error{Kind: remote.ConnectionFailed, Message: message, Detail: err.Error(), Err: err}
	}
	if checksum != "" {
		if err := VerifyFileChecksum(checksum, target); err != nil {
			return nil, &remote.Error{Kind: remote.ProtocolError, Message: "Downloaded firmware is corrupted", Detail: err.Error(), Err: err}
		}
	}
	log.WithField("firmware", target).Debug("Firmware downloaded")
	return target, nil
}

// run performs the download. The downloader has no notion of context, so
// it is closed when ctx ends.
func run(ctx context.Context, d *downloader.Downloader) error {
	if d == nil {
		// already downloaded
		return nil
	}
	done := make(chan error, 1)
	go func() { done <- d.Run() }()
	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("downloading %s: %w", d.URL, err)
		}
	case <-ctx.Done():
		_ = d.Close()
		return ctx.Err()
	}
	if d.Resp.StatusCode >= 400 && d.Resp.StatusCode <= 599 {
		return fmt.Errorf("downloading %s: %s", d.URL, d.Resp.Status)
	}
	return nil
}

// VerifyFileChecksum checks filePath against a checksum in the
// "ALGORITHM:hex" form, e.g. "SHA-256:9f86d0...".
func VerifyFileChecksum(checksum string, filePath *paths.Path) error {
	if checksum == "" {
		return fmt.Errorf("missing checksum for: %s", filePath)
	}
	split := strings.SplitN(checksum, ":", 2)
	if len(split) != 2 {
		return fmt.Errorf("invalid checksum format: %s", checksum)
	}
	digest, err := hex.DecodeString(split[1])
	if err != nil {
		return fmt.Errorf("invalid hash '%s': %s", split[1], err)
	}

	var algo hash.Hash
	switch split[0] {
	case "SHA-256":
		algo = sha256.New()
	case "SHA-1":
		algo = sha1.New()
	case "MD5":
		algo = md5.New()
	default:
		return fmt.Errorf("unsupported hash algorithm: %s", split[0])
	}

	if err := hashFile(algo, filePath); err != nil {
		return err
	}
	if !bytes.Equal(algo.Sum(nil), digest) {
		return fmt.Errorf("file hash differs from %s", checksum)
	}
	return nil
}

// Checksum returns the SHA-256 of filePath in the form accepted by
// VerifyFileChecksum.
func Checksum(filePath *paths.Path) (string, error) {
	algo := sha256.New()
	if err := hashFile(algo, filePath); err != nil {
		return "", err
	}
	return "SHA-256:" + hex.EncodeToString(algo.Sum(nil)), nil
}

func hashFile(algo hash.Hash, filePath *paths.Path) error {
	file, err := filePath.Open()
	if err != nil {
		return fmt.Errorf("opening file: %s", err)
	}
	defer file.Close()
	if _, err := io.Copy(algo, file); err != nil {
		return fmt.Errorf("computing hash: %s", err)
	}
	return nil
}
