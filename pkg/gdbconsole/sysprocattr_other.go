//go:build !(linux || darwin)

package gdbconsole

import "syscall"

func backgroundSysProcAttr() *syscall.SysProcAttr {
	return nil
}
