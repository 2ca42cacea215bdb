package domain

import "time"

// Health statuses, from best to worst.
const (
	HealthStatusOK = "ok"
	// HealthStatusDegraded means an optional dependency (events, secrets) is failing while quotes
	// can still be served.
	HealthStatusDegraded = "degraded"
	// HealthStatusError means a critical dependency such as the catalog store is unreachable.
	HealthStatusError = "error"
)

// WorseHealthStatus returns the more severe of a and b.
func WorseHealthStatus(a, b string) string {
	if healthRank(b) > healthRank(a) {
		return b
	}
	return a
}

func healthRank(status string) int {
	switch status {
	case HealthStatusError:
		return 2
	case HealthStatusDegraded:
		return 1
	default:
		return 0
	}
}

// SystemHealthCheck is the outcome of one dependency probe.
type SystemHealthCheck struct {
	Status string
	// Critical checks gate readiness; the rest only degrade it.
	Critical  bool
	Detail    string
	Error     string
	Latency   time.Duration
	CheckedAt time.Time
}

// SystemHealthReport is the readiness snapshot served on /readyz.
type SystemHealthReport struct {
	Status      string
	Checks      map[string]SystemHealthCheck
	Version     string
	CommitSHA   string
	Environment string
	Uptime      time.Duration
	GeneratedAt time.Time
}

// Ready reports whether the service should receive traffic.
func (r SystemHealthReport) Ready() bool {
	return r.Status != HealthStatusError
}
