package match

import "github.com/prometheus/client_golang/prometheus"

func newTestRegistry() *prometheus.Registry {
	return prometheus.NewRegistry()
}
