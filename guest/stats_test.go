package guest

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/projecteru2/virtmon/config"
	"github.com/projecteru2/virtmon/controlplane"
	"github.com/projecteru2/virtmon/types"
)

var tickBase = time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)

func tickAt(t *testing.T, g *Guest, offset time.Duration) {
	t.Helper()
	if err := g.Tick(context.Background(), tickBase.Add(offset)); err != nil {
		t.Fatalf("tick at +%s: %v", offset, err)
	}
}

func TestTickDerivesRates(t *testing.T) {
	conn := newFakeConn()
	g, _ := newTestGuest(t, conn, nil)

	tickAt(t, g, 0)

	conn.mu.Lock()
	conn.info.CPUTimeNS = 2e9 // 2s of CPU over 1s wall on 4 host CPUs
	conn.net["vnet0"] = types.NetCounters{RxBytes: 2048 * 1024, TxBytes: 1024 * 1024}
	conn.block["vda"] = types.BlockCounters{RdBytes: 512 * 1024, WrBytes: 256 * 1024}
	conn.mu.Unlock()

	tickAt(t, g, time.Second)

	s := g.Latest()
	if s.CPUPercent != 50 {
		t.Errorf("CPUPercent = %v, want 50", s.CPUPercent)
	}
	if s.NetRxRate != 2048 || s.NetTxRate != 1024 {
		t.Errorf("net rates = %v/%v, want 2048/1024", s.NetRxRate, s.NetTxRate)
	}
	if s.DiskRdRate != 512 || s.DiskWrRate != 256 {
		t.Errorf("disk rates = %v/%v, want 512/256", s.DiskRdRate, s.DiskWrRate)
	}

	maxima := g.RateMaxima()
	if maxima.NetRx != 2048 || maxima.NetTx != 1024 || maxima.DiskRd != 512 || maxima.DiskWr != 256 {
		t.Errorf("maxima not raised: %+v", maxima)
	}
}

func TestTickRateFlooredAtZero(t *testing.T) {
	conn := newFakeConn()
	g, _ := newTestGuest(t, conn, nil)

	conn.mu.Lock()
	conn.net["vnet0"] = types.NetCounters{RxBytes: 4096 * 1024}
	conn.mu.Unlock()
	tickAt(t, g, 0)

	// Counter reset, e.g. the machine power-cycled between ticks.
	conn.mu.Lock()
	conn.net["vnet0"] = types.NetCounters{RxBytes: 0}
	conn.mu.Unlock()
	tickAt(t, g, time.Second)

	if rate := g.Latest().NetRxRate; rate != 0 {
		t.Errorf("NetRxRate = %v, want 0 after counter reset", rate)
	}
}

func TestTickCPUPercentClamped(t *testing.T) {
	conn := newFakeConn()
	g, _ := newTestGuest(t, conn, nil)

	tickAt(t, g, 0)
	conn.mu.Lock()
	conn.info.CPUTimeNS = 100e9 // far more CPU time than wall time allows
	conn.mu.Unlock()
	tickAt(t, g, time.Second)

	if got := g.Latest().CPUPercent; got != 100 {
		t.Errorf("CPUPercent = %v, want clamp to 100", got)
	}
}

func TestTickManagementDomainMemoryClamp(t *testing.T) {
	conn := newFakeConn()
	conn.info.ID = 0
	conn.info.MaxMemKB = 1 << 40 // sentinel "unlimited"
	g, _ := newTestGuest(t, conn, nil)

	tickAt(t, g, 0)

	if got := g.Latest().MaxMemKB; got != conn.host.MemoryKB {
		t.Errorf("MaxMemKB = %d, want host memory %d", got, conn.host.MemoryKB)
	}
	if !g.IsManagementDomain() {
		t.Error("id 0 should read as the management domain")
	}
}

func TestTickStoppedMachine(t *testing.T) {
	conn := newFakeConn()
	conn.info.ID = -1
	conn.info.RawState = types.RawStateShutOff
	conn.info.CPUTimeNS = 5e9 // stale counter from the last run
	g, _ := newTestGuest(t, conn, nil)

	tickAt(t, g, 0)
	tickAt(t, g, time.Second)

	s := g.Latest()
	if s.CPUTimeAbs != 0 || s.CPUPercent != 0 {
		t.Errorf("stopped machine must sample zero CPU, got %+v", s)
	}
	if conn.netCalls != 0 || conn.blockCalls != 0 {
		t.Error("stopped machine must not poll counters")
	}
	if g.IsActive() {
		t.Error("machine should be inactive")
	}
}

func TestTickHistoryBounded(t *testing.T) {
	conn := newFakeConn()
	conf := config.DefaultConfig()
	conf.HistoryLength = 3
	g, _ := newTestGuest(t, conn, conf)

	for i := 0; i < 5; i++ {
		tickAt(t, g, time.Duration(i)*time.Second)
	}

	hist := g.History()
	if len(hist) != 3 {
		t.Fatalf("history length = %d, want 3", len(hist))
	}
	// Newest first.
	if !hist[0].Timestamp.After(hist[1].Timestamp) || !hist[1].Timestamp.After(hist[2].Timestamp) {
		t.Errorf("history not newest-first: %v %v %v",
			hist[0].Timestamp, hist[1].Timestamp, hist[2].Timestamp)
	}
}

func TestTickMovingAverage(t *testing.T) {
	conn := newFakeConn()
	g, _ := newTestGuest(t, conn, nil)

	for i, cpu := range []uint64{0, 1e9, 2e9} {
		conn.mu.Lock()
		conn.info.CPUTimeNS = cpu
		conn.mu.Unlock()
		tickAt(t, g, time.Duration(i)*time.Second)
	}

	s := g.Latest()
	// Window covers the two prior samples; 2e9 ns over 2 samples.
	if s.CPUTimeMovingAvg != 1e9 {
		t.Errorf("CPUTimeMovingAvg = %v, want 1e9", s.CPUTimeMovingAvg)
	}
	// 2e9 ns of CPU over 2s of wall time on 4 CPUs.
	if s.CPUTimeMovingAvgPercent != 25 {
		t.Errorf("CPUTimeMovingAvgPercent = %v, want 25", s.CPUTimeMovingAvgPercent)
	}
}

func TestTickUnsupportedCountersDisablePermanently(t *testing.T) {
	conn := newFakeConn()
	conn.netErr = fmt.Errorf("%w: not implemented", controlplane.ErrUnsupported)
	g, _ := newTestGuest(t, conn, nil)

	tickAt(t, g, 0)
	callsAfterFirst := conn.netCalls
	if callsAfterFirst == 0 {
		t.Fatal("first tick should have tried the counter endpoint")
	}

	// Even after the endpoint starts working, polling stays off.
	conn.mu.Lock()
	conn.netErr = nil
	conn.net["vnet0"] = types.NetCounters{RxBytes: 1024 * 1024}
	conn.mu.Unlock()
	tickAt(t, g, time.Second)

	if conn.netCalls != callsAfterFirst {
		t.Errorf("net polling not permanently disabled: %d calls after unsupported answer", conn.netCalls)
	}
	if g.Latest().NetRxRate != 0 {
		t.Error("disabled category must sample zero")
	}
	// Disk polling is unaffected.
	if conn.blockCalls == 0 {
		t.Error("disk polling should continue independently")
	}
}

func TestTickTransientCounterErrorKeepsPolling(t *testing.T) {
	conn := newFakeConn()
	conn.blockErr = fmt.Errorf("temporarily hosed")
	g, _ := newTestGuest(t, conn, nil)

	tickAt(t, g, 0)
	first := conn.blockCalls
	tickAt(t, g, time.Second)

	if conn.blockCalls <= first {
		t.Error("transient error must not disable polling")
	}
}

func TestTickDisabledPollSkipsCounters(t *testing.T) {
	conn := newFakeConn()
	conf := config.DefaultConfig()
	conf.EnableNetPoll = false
	conf.EnableDiskPoll = false
	g, _ := newTestGuest(t, conn, conf)

	tickAt(t, g, 0)
	tickAt(t, g, time.Second)

	if conn.netCalls != 0 || conn.blockCalls != 0 {
		t.Errorf("disabled polling still hit the endpoints: net=%d block=%d",
			conn.netCalls, conn.blockCalls)
	}
}

func TestTickReenabledPollResamplesBaseline(t *testing.T) {
	conn := newFakeConn()
	conf := config.DefaultConfig()
	conf.EnableNetPoll = false
	g, _ := newTestGuest(t, conn, conf)

	conn.mu.Lock()
	conn.net["vnet0"] = types.NetCounters{RxBytes: 1 << 30} // 1 GiB transferred already
	conn.mu.Unlock()

	tickAt(t, g, 0)
	tickAt(t, g, time.Second)

	conf.EnableNetPoll = true
	tickAt(t, g, 2*time.Second)

	// The baseline was refreshed before the rate was derived, so the
	// accumulated gigabyte must not show up as a spike.
	if rate := g.Latest().NetRxRate; rate != 0 {
		t.Errorf("NetRxRate = %v after re-enable, want 0", rate)
	}
}
