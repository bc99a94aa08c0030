// Package selector implements the BusyBox-style boot-command selection
// protocol of spec.md §4.6.
package selector

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/a-scie/jump/internal/pkg/jumperr"
	"github.com/a-scie/jump/internal/pkg/lift"
)

// Selection is the outcome of resolving which command to launch.
type Selection struct {
	Name    string
	Command lift.Command
	// Args is argv with any consumed selector argument shifted off (step 4
	// of spec.md §4.6: "select it and shift argv left by one").
	Args []string
}

// Select runs the protocol of spec.md §4.6 steps 2-6 (step 1, SCIE-env
// intrinsic dispatch, is handled by the caller before Select is reached).
func Select(commands map[string]lift.Command, scieBoot, argv0 string, argv []string) (*Selection, error) {
	if scieBoot != "" {
		if cmd, ok := commands[scieBoot]; ok {
			return &Selection{Name: scieBoot, Command: cmd, Args: argv}, nil
		}
		return nil, selectorError(commands, fmt.Sprintf("SCIE_BOOT names unknown command %q", scieBoot))
	}

	stem := stripExeExt(filepath.Base(argv0))
	if cmd, ok := commands[stem]; ok && hasNamedCommands(commands) {
		return &Selection{Name: stem, Command: cmd, Args: argv}, nil
	}

	if len(argv) > 0 {
		if cmd, ok := commands[argv[0]]; ok {
			return &Selection{Name: argv[0], Command: cmd, Args: argv[1:]}, nil
		}
	}

	if cmd, ok := commands[""]; ok {
		return &Selection{Name: "", Command: cmd, Args: argv}, nil
	}

	return nil, selectorError(commands, "no command could be selected")
}

func hasNamedCommands(commands map[string]lift.Command) bool {
	for name := range commands {
		if name != "" {
			return true
		}
	}
	return false
}

func stripExeExt(name string) string {
	ext := filepath.Ext(name)
	switch strings.ToLower(ext) {
	case ".exe", ".bat", ".cmd", ".ps1":
		return strings.TrimSuffix(name, ext)
	default:
		return name
	}
}

func selectorError(commands map[string]lift.Command, reason string) error {
	return jumperr.New(jumperr.Selector, HelpText(commands), "%s", reason)
}

// Hidden reports whether name is a "hidden" named command: it has an empty
// description while a sibling named command has a non-empty one
// (spec.md §4.6: "A named command is considered hidden when any sibling
// named command has a non-empty description and its own description is
// empty").
func Hidden(commands map[string]lift.Command, name string) bool {
	cmd, ok := commands[name]
	if !ok || name == "" || cmd.Description != "" {
		return false
	}
	for sibling, c := range commands {
		if sibling != "" && sibling != name && c.Description != "" {
			return true
		}
	}
	return false
}

// HelpText renders the BusyBox help screen shown on a SelectorError
// (spec.md §4.7 help, §7 decision table): every non-hidden named command,
// name-padded, followed by its description.
func HelpText(commands map[string]lift.Command) string {
	var names []string
	width := 0
	for name := range commands {
		if name == "" || Hidden(commands, name) {
			continue
		}
		names = append(names, name)
		if len(name) > width {
			width = len(name)
		}
	}
	sort.Strings(names)

	var b strings.Builder
	for _, name := range names {
		cmd := commands[name]
		fmt.Fprintf(&b, "%-*s  %s\n", width, name, cmd.Description)
	}
	return strings.TrimRight(b.String(), "\n")
}
