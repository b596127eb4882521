package version

import (
	"runtime"
	"runtime/debug"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolve(t *testing.T) {
	vcs := &debug.BuildInfo{Settings: []debug.BuildSetting{
		{Key: "vcs.revision", Value: "0123456789abcdef0123"},
		{Key: "vcs.time", Value: "2026-10-01T12:00:00Z"},
		{Key: "vcs.modified", Value: "true"},
	}}

	tests := []struct {
		name    string
		v, c, d string
		info    *debug.BuildInfo
		want    Build
	}{
		{
			name: "no metadata",
			want: Build{Version: "dev", Commit: unknown, Date: unknown},
		},
		{
			name: "vcs fallback",
			v:    "dev",
			info: vcs,
			want: Build{Version: "dev", Commit: "0123456789ab", Date: "2026-10-01T12:00:00Z", Modified: true},
		},
		{
			name: "ldflags win over vcs",
			v:    "v1.4.0", c: "deadbeef", d: "2026-10-19",
			info: vcs,
			want: Build{Version: "v1.4.0", Commit: "deadbeef", Date: "2026-10-19", Modified: true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := resolve(tt.v, tt.c, tt.d, tt.info)
			tt.want.GoVersion = runtime.Version()
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCurrentIsStable(t *testing.T) {
	first := Current()
	assert.Equal(t, first, Current())
	assert.NotEmpty(t, first.Version)
	assert.NotEmpty(t, first.Commit)
	assert.NotEmpty(t, first.Date)
}

func TestBuildString(t *testing.T) {
	b := Build{Version: "v1.0.0", Commit: "abc", Date: "2026-10-19", GoVersion: "go1.24.0"}
	assert.Equal(t, "barflow v1.0.0 (commit abc, built 2026-10-19, go1.24.0)", b.String())

	b.Modified = true
	assert.Equal(t, "barflow v1.0.0 (commit abc, built 2026-10-19, go1.24.0) dirty", b.String())
}

func TestBuildCollector(t *testing.T) {
	b := Build{Version: "v1.0.0", Commit: "abc", GoVersion: "go1.24.0"}
	registry := prometheus.NewRegistry()
	require.NoError(t, registry.Register(b.Collector()))

	count, err := testutil.GatherAndCount(registry, "bar_build_info")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	assert.Equal(t, float64(1), testutil.ToFloat64(b.Collector()))
}
