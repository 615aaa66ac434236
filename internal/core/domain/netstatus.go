package domain

import "time"

// Quality is the discrete network-health bucket derived from probe latency
// and recent success rate.
type Quality string

const (
	QualityOffline   Quality = "offline"
	QualityPoor      Quality = "poor"
	QualityFair      Quality = "fair"
	QualityGood      Quality = "good"
	QualityExcellent Quality = "excellent"
)

// NetworkStatus is the current connectivity snapshot. Mutated only by the
// quality monitor; everyone else reads copies. EffectiveType and DownlinkMbps
// are environment-supplied hints and stay zero when the host has none; RTT is
// the rolling mean latency of the sample window.
type NetworkStatus struct {
	IsOnline      bool
	EffectiveType string
	DownlinkMbps  float64
	RTT           time.Duration
	Quality       Quality
	LastChanged   time.Time
}

// HealthState is owned by the connection health monitor and transitions only
// through its probe cycle.
type HealthState struct {
	IsHealthy           bool
	ConsecutiveFailures int
	CurrentBackoff      time.Duration
	LastCheckAt         time.Time
}
