package version

import (
	"strings"
	"testing"
)

func TestRevision_PrefersStampedSHA(t *testing.T) {
	orig := GitSHA
	defer func() { GitSHA = orig }()

	GitSHA = "abc1234"
	if got := Revision(); got != "abc1234" {
		t.Errorf("Revision() = %q, want abc1234", got)
	}

	GitSHA = "unknown"
	if got := Revision(); got == "" {
		t.Error("Revision() must never be empty")
	}
}

func TestString(t *testing.T) {
	origV, origSHA, origT := Version, GitSHA, BuildTime
	defer func() { Version, GitSHA, BuildTime = origV, origSHA, origT }()

	Version, GitSHA, BuildTime = "1.2.0", "deadbee", "2026-01-01T00:00:00Z"
	got := String()
	for _, want := range []string{"1.2.0", "deadbee", "2026-01-01T00:00:00Z"} {
		if !strings.Contains(got, want) {
			t.Errorf("String() = %q, missing %q", got, want)
		}
	}
}
