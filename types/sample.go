package types

import "time"

// Sample is one time-series observation of a machine's resource counters
// plus the metrics derived from them. Samples are value types: once taken
// they are never mutated, a new sample replaces the head of the history.
type Sample struct {
	Timestamp time.Time

	// CPU.
	CPUTimeAbs   uint64  // cumulative guest CPU time, nanoseconds
	CPUTimeDelta uint64  // CPUTimeAbs delta against the previous sample
	CPUPercent   float64 // host-wide utilization, clamped to [0, 100]

	// CPU moving average over the most recent up-to-5 samples.
	CPUTimeMovingAvg        float64
	CPUTimeMovingAvgPercent float64 // same clamp as CPUPercent

	// Memory, in KiB as reported by the control connection.
	CurrMemKB      uint64
	MaxMemKB       uint64
	CurrMemPercent float64 // of host physical memory
	MaxMemPercent  float64

	VCPUs int

	// Cumulative I/O counters, KiB.
	DiskRdKB int64
	DiskWrKB int64
	NetRxKB  int64
	NetTxKB  int64

	// Derived per-second rates, KiB/s, floored at zero.
	DiskRdRate float64
	DiskWrRate float64
	NetRxRate  float64
	NetTxRate  float64
}

// RateMaxima tracks the running per-field maximum of each derived rate,
// used to normalize chart vectors to [0, 1]. The floor of 10 KiB/s keeps
// idle charts from being scaled up into noise.
type RateMaxima struct {
	DiskRd float64
	DiskWr float64
	NetRx  float64
	NetTx  float64
}

// NewRateMaxima returns maxima seeded with the 10 KiB/s floor.
func NewRateMaxima() RateMaxima {
	return RateMaxima{DiskRd: 10.0, DiskWr: 10.0, NetRx: 10.0, NetTx: 10.0}
}

// Observe raises each maximum that the sample's rates exceed.
func (m *RateMaxima) Observe(s *Sample) {
	if s.DiskRdRate > m.DiskRd {
		m.DiskRd = s.DiskRdRate
	}
	if s.DiskWrRate > m.DiskWr {
		m.DiskWr = s.DiskWrRate
	}
	if s.NetRxRate > m.NetRx {
		m.NetRx = s.NetRxRate
	}
	if s.NetTxRate > m.NetTx {
		m.NetTx = s.NetTxRate
	}
}
