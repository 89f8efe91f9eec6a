//go:build !unix

package utils

// Detach is a no-op where process groups are not available.
func (s *SafeCommand) Detach() *SafeCommand { return s }
