// Package version хранит сведения о сборке. Значения задаются через -ldflags:
//
//	-X github.com/vladislavdragonenkov/barflow/internal/version.version=v1.2.0
//
// Без ldflags коммит и дата берутся из VCS-информации, которую go build вшивает в бинарник.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	version = "dev"
	commit  = ""
	date    = ""
)

const unknown = "unknown"

// Build — описание текущей сборки.
type Build struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	Date      string `json:"date"`
	GoVersion string `json:"go_version"`
	Modified  bool   `json:"modified,omitempty"`
}

var (
	currentOnce sync.Once
	current     Build
)

// Current возвращает сведения о сборке; результат вычисляется один раз.
func Current() Build {
	currentOnce.Do(func() {
		info, _ := debug.ReadBuildInfo()
		current = resolve(version, commit, date, info)
	})
	return current
}

func resolve(v, c, d string, info *debug.BuildInfo) Build {
	b := Build{Version: v, Commit: c, Date: d, GoVersion: runtime.Version()}
	if info != nil {
		for _, s := range info.Settings {
			switch s.Key {
			case "vcs.revision":
				if b.Commit == "" {
					b.Commit = shortRevision(s.Value)
				}
			case "vcs.time":
				if b.Date == "" {
					b.Date = s.Value
				}
			case "vcs.modified":
				b.Modified = s.Value == "true"
			}
		}
	}
	if b.Version == "" {
		b.Version = "dev"
	}
	if b.Commit == "" {
		b.Commit = unknown
	}
	if b.Date == "" {
		b.Date = unknown
	}
	return b
}

func shortRevision(rev string) string {
	if len(rev) > 12 {
		return rev[:12]
	}
	return rev
}

// String — строка для стартового лога.
func (b Build) String() string {
	s := fmt.Sprintf("barflow %s (commit %s, built %s, %s)", b.Version, b.Commit, b.Date, b.GoVersion)
	if b.Modified {
		s += " dirty"
	}
	return s
}

// Collector — метрика bar_build_info со значением 1 и сведениями о сборке в labels.
func (b Build) Collector() prometheus.Collector {
	gauge := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "bar_build_info",
		Help: "Build metadata of the running bar service.",
		ConstLabels: prometheus.Labels{
			"version":    b.Version,
			"commit":     b.Commit,
			"go_version": b.GoVersion,
		},
	})
	gauge.Set(1)
	return gauge
}
