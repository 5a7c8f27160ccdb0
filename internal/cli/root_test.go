package cli

import (
	"sort"
	"testing"
)

// TestAllCommandsRegistered ensures every expected CLI command is registered
// on the root cobra command tree.
func TestAllCommandsRegistered(t *testing.T) {
	root := Root()

	expected := []string{
		"release",
		"version",
	}

	var got []string
	for _, cmd := range root.Commands() {
		name := cmd.Name()
		if name == "help" || name == "completion" {
			continue
		}
		got = append(got, name)
	}
	sort.Strings(got)

	if len(got) != len(expected) {
		t.Fatalf("expected commands %v, got %v", expected, got)
	}
	for i := range expected {
		if got[i] != expected[i] {
			t.Fatalf("expected commands %v, got %v", expected, got)
		}
	}
}

func TestReleaseFlagDefaults(t *testing.T) {
	allow, err := ReleaseCmd.Flags().GetBool("allow-unauthenticated")
	if err != nil {
		t.Fatal(err)
	}
	if allow {
		t.Fatal("--allow-unauthenticated must default to false")
	}

	failFast, err := ReleaseCmd.Flags().GetBool("fail-fast")
	if err != nil {
		t.Fatal(err)
	}
	if failFast {
		t.Fatal("--fail-fast must default to false")
	}
}

func TestReleaseReportsErrorsOnce(t *testing.T) {
	if !ReleaseCmd.SilenceErrors {
		t.Fatal("release failures are printed by the command itself; cobra must not repeat them")
	}
	if !ReleaseCmd.SilenceUsage {
		t.Fatal("release failures must not dump usage text")
	}
}
