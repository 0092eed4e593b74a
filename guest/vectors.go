package guest

import (
	"github.com/projecteru2/virtmon/types"
)

// Sparkline vectors. Each vector is normalized to [0,1], ordered newest
// first and zero-padded to the configured history length so graph widths
// stay constant while history fills up.

func (g *Guest) percentVector(field func(*types.Sample) float64) []float64 {
	g.mu.Lock()
	defer g.mu.Unlock()

	length := g.conf().HistoryLength
	n := len(g.record)
	if n > length {
		n = length
	}
	vector := make([]float64, length)
	for i := 0; i < n; i++ {
		vector[i] = field(&g.record[i]) / 100.0
	}
	return vector
}

// CPUTimeVector is the instantaneous CPU usage series.
func (g *Guest) CPUTimeVector() []float64 {
	return g.percentVector(func(s *types.Sample) float64 { return s.CPUPercent })
}

// CPUTimeMovingAvgVector is the smoothed CPU usage series.
func (g *Guest) CPUTimeMovingAvgVector() []float64 {
	return g.percentVector(func(s *types.Sample) float64 { return s.CPUTimeMovingAvgPercent })
}

// CurrentMemoryVector is the current-memory usage series.
func (g *Guest) CurrentMemoryVector() []float64 {
	return g.percentVector(func(s *types.Sample) float64 { return s.CurrMemPercent })
}

// CPUTimeVectorLimit is CPUTimeVector truncated to at most limit entries.
func (g *Guest) CPUTimeVectorLimit(limit int) []float64 {
	vector := g.CPUTimeVector()
	if limit < len(vector) {
		vector = vector[:limit]
	}
	return vector
}

// inOutVector builds the concatenated in+out series for a rate pair. Both
// halves share a single ceiling, the larger of the two running maxima, so
// they stay comparable on the same scale.
func (g *Guest) inOutVector(in, out func(*types.Sample) float64, ceil float64) []float64 {
	g.mu.Lock()
	defer g.mu.Unlock()

	length := g.conf().HistoryLength
	n := len(g.record)
	if n > length {
		n = length
	}
	if ceil <= 0 {
		ceil = 1
	}
	vector := make([]float64, length*2)
	for i := 0; i < n; i++ {
		vector[i] = in(&g.record[i]) / ceil
		vector[length+i] = out(&g.record[i]) / ceil
	}
	return vector
}

// NetworkTrafficVector is the receive series followed by the transmit
// series, both scaled by the larger traffic maximum seen so far.
func (g *Guest) NetworkTrafficVector() []float64 {
	maxima := g.RateMaxima()
	ceil := maxima.NetRx
	if maxima.NetTx > ceil {
		ceil = maxima.NetTx
	}
	return g.inOutVector(
		func(s *types.Sample) float64 { return s.NetRxRate },
		func(s *types.Sample) float64 { return s.NetTxRate },
		ceil)
}

// DiskIOVector is the read series followed by the write series, both scaled
// by the larger disk maximum seen so far.
func (g *Guest) DiskIOVector() []float64 {
	maxima := g.RateMaxima()
	ceil := maxima.DiskRd
	if maxima.DiskWr > ceil {
		ceil = maxima.DiskWr
	}
	return g.inOutVector(
		func(s *types.Sample) float64 { return s.DiskRdRate },
		func(s *types.Sample) float64 { return s.DiskWrRate },
		ceil)
}

// NetworkTrafficVectorLimit is NetworkTrafficVector reduced to limit
// entries per direction.
func (g *Guest) NetworkTrafficVectorLimit(limit int) []float64 {
	return inOutVectorLimit(g.NetworkTrafficVector(), limit)
}

// DiskIOVectorLimit is DiskIOVector reduced to limit entries per direction.
func (g *Guest) DiskIOVectorLimit(limit int) []float64 {
	return inOutVectorLimit(g.DiskIOVector(), limit)
}

// inOutVectorLimit collapses a concatenated in+out vector into a single
// combined series of per-index means, keeping at most limit entries (the
// newest of each direction) so the result still fits the width.
func inOutVectorLimit(data []float64, limit int) []float64 {
	half := len(data) / 2
	end := half
	if end > limit {
		end = limit
	}
	out := make([]float64, end)
	for i := 0; i < end; i++ {
		out[i] = (data[i] + data[half+i]) / 2
	}
	return out
}
