package cmd

import (
	"strings"
	"testing"
)

func TestRootCmd(t *testing.T) {
	if rootCmd.Use != "fastchat" {
		t.Errorf("expected Use=%q, got %q", "fastchat", rootCmd.Use)
	}
	if rootCmd.Short == "" {
		t.Error("expected non-empty Short description")
	}
	if !strings.Contains(rootCmd.Long, "PostgreSQL") {
		t.Error("expected Long description to mention PostgreSQL")
	}
}

func TestSubcommandsRegistered(t *testing.T) {
	want := map[string]bool{
		"serve":   false,
		"migrate": false,
		"version": false,
	}

	for _, sub := range rootCmd.Commands() {
		name := strings.Fields(sub.Use)[0]
		if _, ok := want[name]; ok {
			want[name] = true
		}
	}

	for name, found := range want {
		if !found {
			t.Errorf("expected subcommand %q to be registered", name)
		}
	}
}
