package depgraph

import "testing"

func TestEnterLeaveHappyPath(t *testing.T) {
	g := New()

	done, err := g.Enter("a")
	if err != nil {
		t.Fatalf("Enter: %v", err)
	}
	if done {
		t.Fatal("expected a freshly-entered node to not already be done")
	}
	g.Leave("a")

	done, err = g.Enter("a")
	if err != nil {
		t.Fatalf("re-Enter of a done node should not error: %v", err)
	}
	if !done {
		t.Error("expected re-Enter of a Left node to report alreadyDone")
	}
}

func TestEnterDetectsCycle(t *testing.T) {
	g := New()

	if _, err := g.Enter("a"); err != nil {
		t.Fatalf("Enter(a): %v", err)
	}
	if _, err := g.Enter("b"); err != nil {
		t.Fatalf("Enter(b): %v", err)
	}
	if _, err := g.Enter("a"); err == nil {
		t.Fatal("expected re-Enter of an in-progress node to report a cycle")
	}
}

func TestIndependentKeysDoNotInterfere(t *testing.T) {
	g := New()
	if _, err := g.Enter("file:a"); err != nil {
		t.Fatalf("Enter: %v", err)
	}
	// "binding:a" is a distinct key from "file:a" even though the suffix
	// matches; the namespacing prefix is the caller's responsibility.
	done, err := g.Enter("binding:a")
	if err != nil {
		t.Fatalf("Enter(binding:a): %v", err)
	}
	if done {
		t.Error("expected binding:a to be a fresh, unrelated key")
	}
}
