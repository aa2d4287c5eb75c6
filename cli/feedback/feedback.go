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

package feedback

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/openblockcc/remote-flasher/progress"
	"github.com/openblockcc/remote-flasher/remote"
)

// ExitCode to be used for Fatal.
type ExitCode int

const (
	// Success (0 is the no error return code in Unix)
	Success ExitCode = iota

	// ErrGeneric Generic error (1 is the reserved "catchall" code in Unix)
	ErrGeneric

	_ // (2 Is reserved in Unix)

	// ErrNoConfigFile is returned when the config file is not found (3)
	ErrNoConfigFile

	// ErrAborted is returned when the user stopped the operation (4)
	ErrAborted

	// ErrNetwork is returned when a network error occurs (5)
	ErrNetwork

	_ // (6 was ErrCoreConfig and has been removed)

	// ErrBadArgument is returned when the arguments are not valid (7)
	ErrBadArgument
)

// ExitCodeFor picks the exit code matching the kind of err.
func ExitCodeFor(err error) ExitCode {
	var rerr *remote.Error
	if !errors.As(err, &rerr) {
		return ErrGeneric
	}
	switch {
	case rerr.Kind.IsNetwork():
		return ErrNetwork
	case rerr.Kind == remote.FileNotFound:
		return ErrBadArgument
	case rerr.Kind == remote.Aborted:
		return ErrAborted
	}
	return ErrGeneric
}

// OutputFormat is an output format
type OutputFormat int

const (
	// Text is the plain text format, suitable for interactive terminals
	Text OutputFormat = iota
	// JSON format
	JSON
)

var formats map[string]OutputFormat = map[string]OutputFormat{
	"json": JSON,
	"text": Text,
}

func (f OutputFormat) String() string {
	for res, format := range formats {
		if format == f {
			return res
		}
	}
	panic("unknown output format")
}

// ParseOutputFormat parses a string and returns the corresponding OutputFormat.
// The boolean returned is true if the string was a valid OutputFormat.
func ParseOutputFormat(in string) (OutputFormat, bool) {
	format, found := formats[in]
	return format, found
}

var (
	stdOut         io.Writer    = os.Stdout
	stdErr         io.Writer    = os.Stderr
	format         OutputFormat = Text
	formatSelected bool         = false
)

// Result is anything more complex than a sentence that needs to be printed
// for the user.
type Result interface {
	fmt.Stringer
	Data() interface{}
}

// SetFormat can be used to change the output format of the feedback
func SetFormat(f OutputFormat) {
	if formatSelected {
		panic("output format already selected")
	}
	format = f
	formatSelected = true
}

// GetFormat returns the output format currently set
func GetFormat() OutputFormat {
	return format
}

// Print outputs a plain message in text mode, it is silent in JSON mode.
func Print(msg string) {
	if format == Text {
		fmt.Fprintln(stdOut, msg)
	}
}

// Warning outputs a warning on stderr in text mode.
func Warning(msg string) {
	if format == Text {
		fmt.Fprintln(stdErr, msg)
	}
}

// FatalError outputs the error and exits with status exitCode.
func FatalError(err error, exitCode ExitCode) {
	Fatal(err.Error(), exitCode)
}

// Fatal outputs the errorMsg and exits with status exitCode.
func Fatal(errorMsg string, exitCode ExitCode) {
	if format == Text {
		fmt.Fprintln(stdErr, errorMsg)
		os.Exit(int(exitCode))
	}

	type FatalError struct {
		Error string `json:"error"`
	}
	res := &FatalError{
		Error: errorMsg,
	}
	printJSON(res)
	os.Exit(int(exitCode))
}

// FatalRemoteError outputs a failed operation with its kind and exits with
// the exit code matching the kind.
func FatalRemoteError(err error) {
	code := ExitCodeFor(err)
	var rerr *remote.Error
	if format == Text || !errors.As(err, &rerr) {
		Fatal(err.Error(), code)
	}
	printJSON(struct {
		Error  string      `json:"error"`
		Kind   remote.Kind `json:"kind"`
		Detail string      `json:"detail,omitempty"`
		Status int         `json:"status,omitempty"`
		Check  string      `json:"check,omitempty"`
	}{rerr.Error(), rerr.Kind, rerr.Detail, rerr.Status, rerr.Check})
	os.Exit(int(code))
}

func printJSON(v interface{}) {
	d, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Fprintf(stdErr, "Error during JSON encoding of the output: %v\n", err)
		os.Exit(int(ErrGeneric))
	}
	fmt.Fprintln(stdOut, string(d))
}

// PrintResult is a convenient wrapper to provide feedback for complex data,
// where the contents can't be just serialized to JSON but requires more
// structure.
func PrintResult(res Result) {
	switch format {
	case JSON:
		printJSON(res.Data())
	case Text:
		if data := res.String(); data != "" {
			fmt.Fprintln(stdOut, data)
		}
	default:
		panic("unknown output format")
	}
}

// ProgressSink returns where flash progress goes: formatted lines on
// stdout in text mode, nothing in JSON mode where only the final result is
// printed.
func ProgressSink() progress.Sink {
	if format == JSON {
		return progress.Discard
	}
	return progress.LineSink(stdOut)
}

// Stdout returns the writer for raw output.
func Stdout() io.Writer {
	if format == JSON {
		return io.Discard
	}
	return stdOut
}
