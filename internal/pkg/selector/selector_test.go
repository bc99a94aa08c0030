package selector

import (
	"strings"
	"testing"

	"github.com/a-scie/jump/internal/pkg/lift"
)

func commands() map[string]lift.Command {
	return map[string]lift.Command{
		"":      {Exe: "/bin/default"},
		"serve": {Exe: "/bin/serve", Description: "run the server"},
		"hidden": {Exe: "/bin/hidden"},
	}
}

func TestSelectByScieBootEnv(t *testing.T) {
	sel, err := Select(commands(), "serve", "myapp", []string{"--port", "8080"})
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if sel.Name != "serve" {
		t.Errorf("Name = %q, want %q", sel.Name, "serve")
	}
	if len(sel.Args) != 2 {
		t.Errorf("Args = %v, want argv left intact", sel.Args)
	}
}

func TestSelectByScieBootEnvUnknownNameErrors(t *testing.T) {
	if _, err := Select(commands(), "bogus", "myapp", nil); err == nil {
		t.Fatal("expected error for unknown SCIE_BOOT command name")
	}
}

func TestSelectByArgv0Stem(t *testing.T) {
	sel, err := Select(commands(), "", "/usr/local/bin/serve.exe", []string{"a", "b"})
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if sel.Name != "serve" {
		t.Errorf("Name = %q, want %q", sel.Name, "serve")
	}
	if len(sel.Args) != 2 {
		t.Errorf("expected argv0 match to leave argv untouched, got %v", sel.Args)
	}
}

func TestSelectByPositionalArgShiftsArgv(t *testing.T) {
	sel, err := Select(commands(), "", "myapp", []string{"serve", "--port", "8080"})
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if sel.Name != "serve" {
		t.Errorf("Name = %q, want %q", sel.Name, "serve")
	}
	want := []string{"--port", "8080"}
	if len(sel.Args) != len(want) || sel.Args[0] != want[0] || sel.Args[1] != want[1] {
		t.Errorf("Args = %v, want %v", sel.Args, want)
	}
}

func TestSelectFallsBackToDefaultCommand(t *testing.T) {
	sel, err := Select(commands(), "", "myapp", []string{"--flag"})
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if sel.Name != "" {
		t.Errorf("Name = %q, want default command", sel.Name)
	}
	if len(sel.Args) != 1 || sel.Args[0] != "--flag" {
		t.Errorf("Args = %v, want argv untouched for default command", sel.Args)
	}
}

func TestSelectErrorsWithoutDefaultCommand(t *testing.T) {
	noDefault := map[string]lift.Command{
		"serve": {Exe: "/bin/serve", Description: "run the server"},
	}
	if _, err := Select(noDefault, "", "myapp", []string{"--flag"}); err == nil {
		t.Fatal("expected error when no command can be selected and there is no default")
	}
}

func TestHiddenCommandOmittedFromHelp(t *testing.T) {
	cmds := commands()
	if !Hidden(cmds, "hidden") {
		t.Error("expected 'hidden' command (empty description, sibling has one) to be Hidden")
	}
	if Hidden(cmds, "serve") {
		t.Error("'serve' has a description and should not be Hidden")
	}
	help := HelpText(cmds)
	if strings.Contains(help, "hidden") {
		t.Errorf("HelpText should omit hidden commands, got:\n%s", help)
	}
	if !strings.Contains(help, "serve") || !strings.Contains(help, "run the server") {
		t.Errorf("HelpText should list 'serve' with its description, got:\n%s", help)
	}
}
