package version

import (
	"runtime"
	"strings"
	"testing"

	"github.com/matryer/is"
)

func setBuild(t *testing.T, version, commit, built string) {
	t.Helper()
	v, c, b := Version, GitCommit, BuildTime
	t.Cleanup(func() { Version, GitCommit, BuildTime = v, c, b })
	Version, GitCommit, BuildTime = version, commit, built
}

func TestGetVersionInfo(t *testing.T) {
	tests := []struct {
		name    string
		version string
		commit  string
		built   string
		want    []string
	}{
		{"defaults", "dev", "unknown", "unknown", []string{"va-go version dev", "commit: unknown", "built: unknown"}},
		{"release", "v1.0.0", "abc123", "2026-01-01T00:00:00Z", []string{"va-go version v1.0.0", "commit: abc123", "built: 2026-01-01T00:00:00Z"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			is := is.New(t)
			setBuild(t, tt.version, tt.commit, tt.built)

			info := GetVersionInfo()
			for _, w := range tt.want {
				is.True(strings.Contains(info, w))
			}
			is.True(strings.Contains(info, runtime.Version()))
		})
	}
}

func TestUserAgent(t *testing.T) {
	is := is.New(t)
	setBuild(t, "v0.3.1", "", "")
	is.Equal(UserAgent(), "va-go/v0.3.1")
}
