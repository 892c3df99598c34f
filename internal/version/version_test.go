package version

import (
	"strings"
	"testing"
)

// setBuild overrides the build variables for the duration of a test.
func setBuild(t *testing.T, version, commit, buildTime string) {
	t.Helper()
	origVersion, origCommit, origBuildTime := Version, Commit, BuildTime
	t.Cleanup(func() {
		Version, Commit, BuildTime = origVersion, origCommit, origBuildTime
	})
	Version, Commit, BuildTime = version, commit, buildTime
}

func TestString(t *testing.T) {
	tests := []struct {
		name      string
		version   string
		commit    string
		buildTime string
		want      string
	}{
		{"defaults", "dev", "unknown", "unknown", "dev (unknown) built unknown"},
		{"release", "1.2.3", "abc1234", "2026-01-15T10:00:00Z", "1.2.3 (abc1234) built 2026-01-15T10:00:00Z"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setBuild(t, tt.version, tt.commit, tt.buildTime)
			if got := String(); got != tt.want {
				t.Errorf("String() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestUserAgent(t *testing.T) {
	setBuild(t, "0.4.0", "abc1234", "unknown")

	ua := UserAgent()
	if !strings.HasPrefix(ua, "RelaygateBot (") {
		t.Errorf("UserAgent() = %q, want RelaygateBot prefix", ua)
	}
	if !strings.HasSuffix(ua, ", 0.4.0)") {
		t.Errorf("UserAgent() = %q, should end with version", ua)
	}
}

func TestDefaultValues(t *testing.T) {
	if Version == "" || Commit == "" || BuildTime == "" {
		t.Errorf("build variables must not be empty: %q %q %q", Version, Commit, BuildTime)
	}
}
