//go:build windows

package sandbox

import "syscall"

// isProcessRunning probes a PID by opening the process handle.
func isProcessRunning(pid int) bool {
	handle, err := syscall.OpenProcess(syscall.PROCESS_QUERY_INFORMATION, false, uint32(pid))
	if err != nil {
		return false
	}
	syscall.CloseHandle(handle)
	return true
}
