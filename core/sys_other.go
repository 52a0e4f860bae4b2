//go:build !unix

package core

import "syscall"

func sockControl(network, address string, c syscall.RawConn) error {
	return nil
}
