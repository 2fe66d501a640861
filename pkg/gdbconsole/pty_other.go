//go:build !(linux || darwin)

package gdbconsole

import (
	"errors"
	"os"
	"os/exec"
)

var errPtyUnsupported = errors.New("pty mode is not supported on this platform")

func startPty(cmd *exec.Cmd) (*os.File, error) {
	return nil, errPtyUnsupported
}
