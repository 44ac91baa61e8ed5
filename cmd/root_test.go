package cmd

import (
	"testing"
)

func TestRootCommands(t *testing.T) {
	root := NewRootCmd()
	want := []string{"version", "keys", "hash-secret", "migrate", "server", "run", "settle"}
	for _, name := range want {
		c, _, err := root.Find([]string{name})
		if err != nil || c.Name() != name {
			t.Errorf("subcommand %q not registered (err=%v)", name, err)
		}
	}
}

func TestRunRejectsBadNow(t *testing.T) {
	root := NewRootCmd()
	root.SetArgs([]string{"run", "--now", "tomorrow"})
	if err := root.Execute(); err == nil {
		t.Fatal("expected --now parse error")
	}
}

func TestRequiredFlags(t *testing.T) {
	for _, args := range [][]string{{"settle"}, {"hash-secret"}} {
		root := NewRootCmd()
		root.SetArgs(args)
		if err := root.Execute(); err == nil {
			t.Errorf("%v: expected missing flag error", args)
		}
	}
}
