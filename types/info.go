package types

// MachineInfo is a point-in-time snapshot of a machine as reported by the
// control connection.
type MachineInfo struct {
	// ID is the hypervisor's runtime identifier: -1 when the machine is not
	// running, 0 for the hypervisor's own management/privileged instance.
	ID int `json:"id"`
	// RawState is the unnormalized state code (RawState* constants).
	RawState  int    `json:"state"`
	MaxMemKB  uint64 `json:"max_mem_kb"`
	CurrMemKB uint64 `json:"curr_mem_kb"`
	VCPUs     int    `json:"vcpus"`
	// CPUTimeNS is cumulative guest CPU time in nanoseconds.
	CPUTimeNS uint64 `json:"cpu_time_ns"`
}

// Active reports whether the machine has a live instance.
func (i MachineInfo) Active() bool { return i.ID != -1 }

// ManagementDomain reports whether this is the hypervisor's privileged
// instance. Its reported max memory is a sentinel with no practical meaning
// and gets clamped to host physical memory during sampling.
func (i MachineInfo) ManagementDomain() bool { return i.ID == 0 }

// NetCounters are cumulative interface counters, bytes.
type NetCounters struct {
	RxBytes int64 `json:"rx_bytes"`
	TxBytes int64 `json:"tx_bytes"`
}

// BlockCounters are cumulative block device counters, bytes.
type BlockCounters struct {
	RdBytes int64 `json:"rd_bytes"`
	WrBytes int64 `json:"wr_bytes"`
}

// HostFacts describe the host the machine runs on, used as denominators for
// percentage metrics.
type HostFacts struct {
	MemoryKB   uint64 `json:"memory_kb"`
	ActiveCPUs int    `json:"active_cpus"`
}
