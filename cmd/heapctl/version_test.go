package main

import "testing"

func TestVersionCommand(t *testing.T) {
	output, _ := captureOutput(t, func() error {
		versionCmd.Run(versionCmd, nil)
		return nil
	})
	assertContains(t, output, []string{"heapctl dev", "commit: none", "built: unknown"})
}

func TestRootCommandRegistersSubcommands(t *testing.T) {
	want := map[string]bool{"replay": false, "check": false, "inspect": false, "version": false}
	for _, c := range rootCmd.Commands() {
		if _, ok := want[c.Name()]; ok {
			want[c.Name()] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Errorf("subcommand %q not registered", name)
		}
	}
}
