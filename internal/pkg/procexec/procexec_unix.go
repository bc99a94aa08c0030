//go:build !windows

package procexec

import "syscall"

// execReplace calls syscall.Exec directly, replacing the current process
// image in place (no fork, no wait, no child to reap) so the scie's own
// process becomes the launched command, matching apptainer's re-exec idiom
// for engine entry points.
func execReplace(exePath string, args []string, env []string) error {
	return syscall.Exec(exePath, args, env)
}
