//go:build unix

package utils

import "syscall"

// Detach starts the command in its own process group, so a terminal Ctrl+C
// reaches only this program and it can close the child's input cleanly.
func (s *SafeCommand) Detach() *SafeCommand {
	if s.SysProcAttr == nil {
		s.SysProcAttr = &syscall.SysProcAttr{}
	}
	s.SysProcAttr.Setpgid = true
	return s
}
