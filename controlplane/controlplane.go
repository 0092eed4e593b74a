// Package controlplane defines the narrow interface this core consumes from
// the virtualization control connection, and a concrete client speaking the
// control API over a Unix socket.
package controlplane

import (
	"context"
	"errors"

	"github.com/projecteru2/virtmon/types"
)

// DetailFlag selects how much detail a configuration fetch returns.
// Richer variants may be unsupported by older control connections;
// capability negotiation is exposed through SupportedDetailFlags and the
// cache degrades automatically.
type DetailFlag int

const (
	// DetailSecure includes security-sensitive fields (passwords, keys).
	DetailSecure DetailFlag = 1 << iota
	// DetailInactive returns the persistent definition instead of the live
	// instance state.
	DetailInactive
)

// ErrUnsupported is returned when the control connection lacks a capability
// (a counter category, a detail level). Callers downgrade permanently
// rather than retry.
var ErrUnsupported = errors.New("not supported by control connection")

// Connection is everything the core needs from one machine's control
// connection. Long calls are blocking; timeouts are the implementation's
// concern.
type Connection interface {
	// Name and UUID identify the machine for logging and handle identity.
	Name() string
	UUID() string

	// MachineInfo returns the point-in-time state and resource counters.
	MachineInfo(ctx context.Context) (types.MachineInfo, error)

	// FetchConfig returns the configuration document rendered with the
	// given detail flags.
	FetchConfig(ctx context.Context, flags DetailFlag) (string, error)
	// SubmitPersistentConfig atomically replaces the persistent definition.
	SubmitPersistentConfig(ctx context.Context, xml string) error

	// AttachDeviceFragment and DetachDeviceFragment apply a single device
	// fragment to the live instance without touching the persistent
	// definition.
	AttachDeviceFragment(ctx context.Context, fragment string) error
	DetachDeviceFragment(ctx context.Context, fragment string) error

	// InterfaceCounters and BlockCounters read cumulative counters for one
	// guest device. They return ErrUnsupported when the hypervisor cannot
	// provide that category at all.
	InterfaceCounters(ctx context.Context, dev string) (types.NetCounters, error)
	BlockCounters(ctx context.Context, dev string) (types.BlockCounters, error)

	// SupportedDetailFlags reports which DetailFlag bits FetchConfig
	// accepts.
	SupportedDetailFlags() DetailFlag

	// Host returns the host facts used as percentage denominators.
	Host() types.HostFacts
}
