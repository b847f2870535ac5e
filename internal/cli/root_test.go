package cli

import (
	"io"
	"testing"

	"github.com/charmbracelet/log"
)

func TestRootCommand(t *testing.T) {
	c := New(io.Discard, LogInfo)
	root := c.RootCommand()

	if root.Use != appName {
		t.Errorf("root.Use = %q, want %q", root.Use, appName)
	}
	if root.Version == "" {
		t.Error("root command should carry a version")
	}

	want := []string{"resolve", "plan", "graph", "add", "cache", "registry", "completion"}
	for _, name := range want {
		found := false
		for _, sub := range root.Commands() {
			if sub.Name() == name {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("root command is missing subcommand %q", name)
		}
	}
}

func TestResolveLogLevel(t *testing.T) {
	tests := []struct {
		name    string
		flag    string
		env     string
		verbose bool
		want    log.Level
		wantErr bool
	}{
		{name: "default", want: log.InfoLevel},
		{name: "verbose", verbose: true, want: log.DebugLevel},
		{name: "explicit flag", flag: "error", want: log.ErrorLevel},
		{name: "flag beats verbose", flag: "warn", verbose: true, want: log.WarnLevel},
		{name: "env var", env: "debug", want: log.DebugLevel},
		{name: "flag beats env", flag: "info", env: "debug", want: log.InfoLevel},
		{name: "invalid", flag: "loud", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("HOIST_LOG", tt.env)

			got, err := resolveLogLevel(tt.flag, tt.verbose)
			if (err != nil) != tt.wantErr {
				t.Fatalf("resolveLogLevel() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil && got != tt.want {
				t.Errorf("resolveLogLevel() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSetLogLevel(t *testing.T) {
	c := New(io.Discard, LogInfo)

	c.SetLogLevel(LogDebug)
	if c.Logger.GetLevel() != log.DebugLevel {
		t.Errorf("SetLogLevel(debug) left level at %v", c.Logger.GetLevel())
	}
}
