//go:build windows

package procexec

// execReplace is unreachable on Windows: Replace routes to spawnAndWait
// instead, since Windows has no true exec() that replaces the calling
// process image.
func execReplace(exePath string, args []string, env []string) error {
	return spawnAndWait(exePath, args, env)
}
