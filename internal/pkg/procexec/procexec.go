// Package procexec composes the final child environment from a command's
// env table (spec.md §3/§4.8) and replaces the current process with it.
// syscall.Exec on POSIX mirrors apptainer's own re-exec idiom in
// internal/pkg/runtime/engine/fakeroot/engine_linux.go
// ("syscall.Exec(args[0], args, env)"), minus the namespace/fakeroot setup
// that doesn't apply to a plain command launch.
package procexec

import (
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"runtime"
	"strings"

	"github.com/a-scie/jump/internal/pkg/jumperr"
	"github.com/a-scie/jump/internal/pkg/lift"
)

// ComposeEnv applies cmd's env table, in declaration order, over ambient
// (a "NAME=VALUE" slice, normally os.Environ()), per spec.md §3:
//
//	NAME  (string) -> set only if NAME absent from ambient (default)
//	=NAME (string) -> always set, overriding ambient
//	NAME  (null)   -> remove NAME if present
//	regex form of any of the above -> applied to every matching ambient var
//
// expand is handed the env map as it stands after every prior entry's
// action has been applied, so a later entry's placeholder value can see
// variables an earlier entry just set (spec.md §4.3: "the command's own
// env is visible to its own placeholders").
func ComposeEnv(ambient []string, entries []lift.EnvEntry, expand func(value string, envSoFar map[string]string) (string, error)) (map[string]string, error) {
	env := toMap(ambient)

	for _, e := range entries {
		value := e.Value
		if e.Action != lift.Remove {
			var err error
			value, err = expand(value, env)
			if err != nil {
				return nil, err
			}
		}

		if e.IsRegex() {
			re, err := regexp.Compile("^(?:" + e.Name + ")$")
			if err != nil {
				return nil, jumperr.New(jumperr.Config, "", "invalid env regex %q: %v", e.Name, err)
			}
			for name := range env {
				if !re.MatchString(name) {
					continue
				}
				applyAction(env, name, e.Action, value)
			}
			continue
		}

		applyAction(env, e.Name, e.Action, value)
	}

	return env, nil
}

func applyAction(env map[string]string, name string, action lift.EnvAction, value string) {
	switch action {
	case lift.SetIfAbsent:
		if _, present := env[name]; !present {
			env[name] = value
		}
	case lift.SetAlways:
		env[name] = value
	case lift.Remove:
		delete(env, name)
	}
}

func toMap(env []string) map[string]string {
	m := make(map[string]string, len(env))
	for _, kv := range env {
		if name, value, ok := strings.Cut(kv, "="); ok {
			m[name] = value
		}
	}
	return m
}

// ToSlice renders a resolved env map as "NAME=VALUE" entries suitable for
// exec.Cmd.Env / syscall.Exec.
func ToSlice(env map[string]string) []string {
	out := make([]string, 0, len(env))
	for k, v := range env {
		out = append(out, k+"="+v)
	}
	return out
}

// Replace launches exe with args and env, replacing the current process on
// POSIX (syscall.Exec) or spawning-and-waiting on Windows, where there is
// no real exec(); the child's exit code is then propagated (spec.md §4.8,
// §6: "for a successful exec the child's exit code is propagated on
// Windows").
func Replace(exePath string, args []string, env []string) error {
	if runtime.GOOS == "windows" {
		return spawnAndWait(exePath, args, env)
	}
	return execReplace(exePath, args, env)
}

func spawnAndWait(exePath string, args []string, env []string) error {
	cmd := exec.Command(exePath, args[1:]...)
	cmd.Env = env
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	err := cmd.Run()
	if exitErr, ok := err.(*exec.ExitError); ok {
		os.Exit(exitErr.ExitCode())
	}
	if err != nil {
		return jumperr.Wrap(jumperr.IO, "", err, fmt.Sprintf("spawning %s", exePath))
	}
	os.Exit(0)
	return nil
}
