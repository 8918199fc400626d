/*
Package tool runs the external command-line programs used by the ImageMagick
and vips backends.
*/
package tool

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/ioutil"
	"log"
	"os"
	"os/exec"
	"strings"
)

var errNotFound = errors.New("tool: no matching executable found")

// Runner runs a program to completion and returns its trimmed standard
// output. A non-zero exit status is reported as an *ExitError.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// ExitError is returned when a program fails to start or exits with a
// non-zero status.
type ExitError struct {
	Command string
	Code    int
	Stderr  string
	Err     error
}

func (e *ExitError) Error() string {
	msg := fmt.Sprintf("tool: %s: exit status %d", e.Command, e.Code)
	if e.Code < 0 && e.Err != nil {
		msg = fmt.Sprintf("tool: %s: %v", e.Command, e.Err)
	}
	if e.Stderr != "" {
		msg += ": " + e.Stderr
	}
	return msg
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// Exec is a Runner backed by os/exec.
type Exec struct {
	// Env is appended to the environment of the current process.
	Env    []string
	Logger *log.Logger
}

func commandLine(name string, args []string) string {
	quoted := make([]string, 0, len(args)+1)
	for _, a := range append([]string{name}, args...) {
		if a == "" || strings.ContainsAny(a, " \t\"'") {
			a = fmt.Sprintf("%q", a)
		}
		quoted = append(quoted, a)
	}
	return strings.Join(quoted, " ")
}

// Run implements Runner.
func (e *Exec) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	logger := e.Logger
	if logger == nil {
		logger = log.New(ioutil.Discard, "", 0)
	}

	command := commandLine(name, args)
	logger.Printf("Running %s\n", command)

	cmd := exec.CommandContext(ctx, name, args...)
	if len(e.Env) > 0 {
		cmd.Env = append(os.Environ(), e.Env...)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		code := -1
		var ee *exec.ExitError
		if errors.As(err, &ee) {
			code = ee.ExitCode()
		}

		return nil, &ExitError{
			Command: command,
			Code:    code,
			Stderr:  strings.TrimSpace(stderr.String()),
			Err:     err,
		}
	}

	return bytes.TrimSpace(stdout.Bytes()), nil
}

// LookPath returns the path of the first of names found in the PATH.
func LookPath(names ...string) (string, error) {
	for _, name := range names {
		if file, err := exec.LookPath(name); err == nil {
			return file, nil
		}
	}
	return "", fmt.Errorf("%w: %s", errNotFound, strings.Join(names, ", "))
}

// IsNotFound reports whether err was returned by LookPath because none of
// the names could be found.
func IsNotFound(err error) bool {
	return errors.Is(err, errNotFound)
}
