package guest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/projecteru2/core/log"

	"github.com/projecteru2/virtmon/config"
	"github.com/projecteru2/virtmon/controlplane"
	"github.com/projecteru2/virtmon/domconf"
	"github.com/projecteru2/virtmon/notify"
	"github.com/projecteru2/virtmon/types"
)

// movingAvgWindow is the number of recent samples smoothing the CPU time
// series.
const movingAvgWindow = 5

// Tick takes one sample: reads machine info, derives CPU/memory/IO metrics,
// appends to the bounded history and fires the resources-sampled
// notification. Driven on a fixed cadence by the manager; the config
// snapshot is re-read here so cadence-independent settings (history length,
// poll toggles) apply from this tick onward.
func (g *Guest) Tick(ctx context.Context, now time.Time) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.tickLocked(ctx, now)
}

func (g *Guest) tickLocked(ctx context.Context, now time.Time) error {
	conf := g.conf()

	g.invalidateLocked()

	info, err := g.conn.MachineInfo(ctx)
	if err != nil {
		return fmt.Errorf("query machine info for %s: %w", g.conn.Name(), err)
	}
	g.lastID = info.ID

	// The management domain reports a sentinel, effectively unbounded max
	// memory; clamp it to the host's physical memory, the real-world limit.
	if info.ManagementDomain() {
		info.MaxMemKB = g.conn.Host().MemoryKB
	}

	g.resampleBaselinesLocked(ctx, conf, info)

	sample := types.Sample{Timestamp: now, VCPUs: info.VCPUs}
	g.sampleCPU(&sample, info, now)
	g.sampleMemory(&sample, info)
	sample.DiskRdKB, sample.DiskWrKB = g.sampleDiskLocked(ctx, conf, info)
	sample.NetRxKB, sample.NetTxKB = g.sampleNetLocked(ctx, conf, info)
	g.sampleMovingAvg(&sample, now)
	g.sampleRates(&sample)
	g.maxima.Observe(&sample)

	g.record = append([]types.Sample{sample}, g.record...)
	if len(g.record) > conf.HistoryLength {
		g.record = g.record[:conf.HistoryLength]
	}

	g.updateStatusLocked(info.RawState)
	g.hub.Publish(notify.ResourcesSampled{Name: g.conn.Name()})
	return nil
}

// sampleCPU fills the instantaneous CPU fields. Wall-clock vs hypervisor
// clock skew can push the raw ratio slightly past 100%, which must never
// reach consumers, hence the clamp.
func (g *Guest) sampleCPU(s *types.Sample, info types.MachineInfo, now time.Time) {
	if info.RawState == types.RawStateShutOff || info.RawState == types.RawStateCrashed {
		return
	}

	s.CPUTimeAbs = info.CPUTimeNS

	if len(g.record) == 0 {
		return
	}
	prev := g.record[0]
	if info.CPUTimeNS >= prev.CPUTimeAbs {
		s.CPUTimeDelta = info.CPUTimeNS - prev.CPUTimeAbs
	}

	elapsed := now.Sub(prev.Timestamp)
	cpus := g.conn.Host().ActiveCPUs
	if elapsed <= 0 || cpus <= 0 {
		return
	}
	s.CPUPercent = clampPercent(float64(s.CPUTimeDelta) * 100.0 /
		(float64(elapsed.Nanoseconds()) * float64(cpus)))
}

func (g *Guest) sampleMemory(s *types.Sample, info types.MachineInfo) {
	s.CurrMemKB = info.CurrMemKB
	s.MaxMemKB = info.MaxMemKB
	hostMem := g.conn.Host().MemoryKB
	if hostMem == 0 {
		return
	}
	s.CurrMemPercent = float64(info.CurrMemKB) * 100.0 / float64(hostMem)
	s.MaxMemPercent = float64(info.MaxMemKB) * 100.0 / float64(hostMem)
}

// sampleMovingAvg computes the average CPU time over the oldest of the most
// recent movingAvgWindow samples, using that window's own elapsed wall time
// as the percent denominator.
func (g *Guest) sampleMovingAvg(s *types.Sample, now time.Time) {
	n := movingAvgWindow
	if n > len(g.record) {
		n = len(g.record)
	}
	if n == 0 {
		return
	}
	start := g.record[n-1]

	var delta uint64
	if s.CPUTimeAbs >= start.CPUTimeAbs {
		delta = s.CPUTimeAbs - start.CPUTimeAbs
	}
	s.CPUTimeMovingAvg = float64(delta) / float64(n)

	elapsed := now.Sub(start.Timestamp)
	cpus := g.conn.Host().ActiveCPUs
	if elapsed <= 0 || cpus <= 0 {
		return
	}
	s.CPUTimeMovingAvgPercent = clampPercent(float64(delta) * 100.0 /
		(float64(elapsed.Nanoseconds()) * float64(cpus)))
}

// sampleRates derives per-second rates against the previous sample.
// Cumulative counters must be monotonic; a negative delta (a counter reset
// at power-off) is floored to zero rather than propagated.
func (g *Guest) sampleRates(s *types.Sample) {
	if len(g.record) == 0 {
		return
	}
	prev := g.record[0]
	elapsed := s.Timestamp.Sub(prev.Timestamp).Seconds()
	if elapsed <= 0 {
		return
	}
	rate := func(curr, last int64) float64 {
		r := float64(curr-last) / elapsed
		if r < 0 {
			return 0
		}
		return r
	}
	s.DiskRdRate = rate(s.DiskRdKB, prev.DiskRdKB)
	s.DiskWrRate = rate(s.DiskWrKB, prev.DiskWrKB)
	s.NetRxRate = rate(s.NetRxKB, prev.NetRxKB)
	s.NetTxRate = rate(s.NetTxKB, prev.NetTxKB)
}

// resampleBaselinesLocked refreshes the head sample's cumulative counters
// when a poll category was just re-enabled, so the first enabled tick does
// not register the whole bytes-transferred-so-far as a rate spike. The head
// sample is replaced by value, never mutated in place.
func (g *Guest) resampleBaselinesLocked(ctx context.Context, conf *config.Config, info types.MachineInfo) {
	if conf.EnableNetPoll && !g.netPolled && len(g.record) > 1 {
		head := g.record[0]
		head.NetRxKB, head.NetTxKB = g.sampleNetLocked(ctx, conf, info)
		g.record[0] = head
	}
	g.netPolled = conf.EnableNetPoll

	if conf.EnableDiskPoll && !g.diskPolled && len(g.record) > 1 {
		head := g.record[0]
		head.DiskRdKB, head.DiskWrKB = g.sampleDiskLocked(ctx, conf, info)
		g.record[0] = head
	}
	g.diskPolled = conf.EnableDiskPoll
}

// sampleNetLocked sums interface counters over all guest interfaces.
// An unsupported answer disables network polling permanently for this
// handle; any other failure zeroes this tick's category and polling
// continues next tick.
func (g *Guest) sampleNetLocked(ctx context.Context, conf *config.Config, info types.MachineInfo) (rxKB, txKB int64) {
	logger := log.WithFunc("guest.sampleNet")

	if !conf.EnableNetPoll || !g.netSupported || !info.Active() {
		return 0, 0
	}
	doc, err := g.parseActiveLocked(ctx, false)
	if err != nil {
		logger.Warnf(ctx, "device list for %s: %v", g.conn.Name(), err)
		return 0, 0
	}

	var rx, tx int64
	for _, nic := range domconf.Interfaces(doc) {
		if nic.Target == "" {
			continue
		}
		counters, err := g.conn.InterfaceCounters(ctx, nic.Target)
		if err != nil {
			if errors.Is(err, controlplane.ErrUnsupported) {
				logger.Debugf(ctx, "net counters not supported for %s: %v", g.conn.Name(), err)
				g.netSupported = false
			} else {
				logger.Warnf(ctx, "read net counters for %s dev %s: %v", g.conn.Name(), nic.Target, err)
			}
			return 0, 0
		}
		rx += counters.RxBytes
		tx += counters.TxBytes
	}
	return rx / 1024, tx / 1024
}

// sampleDiskLocked sums block counters over all guest disks, with the same
// degradation rules as sampleNetLocked.
func (g *Guest) sampleDiskLocked(ctx context.Context, conf *config.Config, info types.MachineInfo) (rdKB, wrKB int64) {
	logger := log.WithFunc("guest.sampleDisk")

	if !conf.EnableDiskPoll || !g.diskSupported || !info.Active() {
		return 0, 0
	}
	doc, err := g.parseActiveLocked(ctx, false)
	if err != nil {
		logger.Warnf(ctx, "device list for %s: %v", g.conn.Name(), err)
		return 0, 0
	}
	disks, err := domconf.Disks(doc)
	if err != nil {
		logger.Warnf(ctx, "disk list for %s: %v", g.conn.Name(), err)
		return 0, 0
	}

	var rd, wr int64
	for _, disk := range disks {
		if disk.Target == "" {
			continue
		}
		counters, err := g.conn.BlockCounters(ctx, disk.Target)
		if err != nil {
			if errors.Is(err, controlplane.ErrUnsupported) {
				logger.Debugf(ctx, "disk counters not supported for %s: %v", g.conn.Name(), err)
				g.diskSupported = false
			} else {
				logger.Warnf(ctx, "read disk counters for %s dev %s: %v", g.conn.Name(), disk.Target, err)
			}
			return 0, 0
		}
		rd += counters.RdBytes
		wr += counters.WrBytes
	}
	return rd / 1024, wr / 1024
}

func clampPercent(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 100:
		return 100
	}
	return v
}

// History returns a copy of the sample history, newest first.
func (g *Guest) History() []types.Sample {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]types.Sample, len(g.record))
	copy(out, g.record)
	return out
}

// RateMaxima returns the running per-field rate maxima.
func (g *Guest) RateMaxima() types.RateMaxima {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.maxima
}
