package obs

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var buildInfoOnce sync.Once

// InitBuildInfo регистрирует build_info{version,commit} = 1 в общем реестре.
// Повторные вызовы ничего не делают.
func InitBuildInfo(version, commit string) {
	buildInfoOnce.Do(func() {
		g := prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "build_info",
			Help: "Curia API build information.",
			ConstLabels: prometheus.Labels{
				"version": version,
				"commit":  commit,
			},
		})
		g.Set(1)
		prometheus.MustRegister(g)
	})
}
