package cmd

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/projecteru2/virtmon/guest"
	"github.com/projecteru2/virtmon/manager"
	"github.com/projecteru2/virtmon/types"
	"github.com/projecteru2/virtmon/utils"
)

// socketPath resolves a machine reference to its control socket. A reference
// containing a path separator is taken as a socket path verbatim; a bare
// name maps into the runtime directory.
func socketPath(ref string) string {
	if strings.ContainsRune(ref, '/') {
		return ref
	}
	return filepath.Join(conf.RunDir, ref+".sock")
}

// machineSockets lists the connectable machine control sockets in the
// runtime directory. Leftover socket files from dead control planes are
// skipped.
func machineSockets() ([]string, error) {
	paths, err := filepath.Glob(filepath.Join(conf.RunDir, "*.sock"))
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", conf.RunDir, err)
	}
	live := paths[:0]
	for _, p := range paths {
		if utils.CheckSocket(p) == nil {
			live = append(live, p)
		}
	}
	return live, nil
}

// adoptMachine builds a single-machine manager for one-shot commands. The
// caller owns the returned manager and must Close it.
func adoptMachine(ctx context.Context, ref string) (*manager.Manager, *guest.Guest, error) {
	mgr, err := manager.New(conf)
	if err != nil {
		return nil, nil, err
	}
	g, err := mgr.AdoptSocket(ctx, socketPath(ref))
	if err != nil {
		mgr.Close()
		return nil, nil, err
	}
	return mgr, g, nil
}

// diskIDFromTarget builds a disk identity from its target name.
func diskIDFromTarget(target string) types.DiskID {
	return types.DiskID{Target: target}
}
