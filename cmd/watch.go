package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/projecteru2/core/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/projecteru2/virtmon/config"
	"github.com/projecteru2/virtmon/manager"
	"github.com/projecteru2/virtmon/notify"
	"github.com/projecteru2/virtmon/utils"
)

const (
	sockWaitTimeout  = 30 * time.Second
	sockWaitInterval = 500 * time.Millisecond
)

var watchCmd = func() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch [VM...]",
		Short: "Poll machines continuously and print their events",
		Long: "Adopts the named machines (all machines in the runtime directory when " +
			"none are named) and drives them until interrupted, printing every " +
			"status, config and sampling event. The config file is watched and " +
			"reloaded live.",
		RunE: runWatch,
	}
	cmd.Flags().Bool("quiet-samples", false, "suppress per-tick sampling events")
	return cmd
}()

func runWatch(cmd *cobra.Command, args []string) error {
	ctx := commandContext(cmd)
	logger := log.WithFunc("cmd.watch")
	quietSamples, _ := cmd.Flags().GetBool("quiet-samples")

	mgr, err := manager.New(conf)
	if err != nil {
		return err
	}
	defer mgr.Close()

	socks := make([]string, 0, len(args))
	if len(args) > 0 {
		for _, ref := range args {
			sock := socketPath(ref)
			// A named machine may still be coming up; give its socket a
			// moment to appear.
			err := utils.WaitFor(ctx, sockWaitTimeout, sockWaitInterval, func() (bool, error) {
				_, err := os.Stat(sock)
				if os.IsNotExist(err) {
					return false, nil
				}
				return err == nil, err
			})
			if err != nil {
				return fmt.Errorf("wait for socket %s: %w", sock, err)
			}
			socks = append(socks, sock)
		}
	} else {
		if socks, err = machineSockets(); err != nil {
			return err
		}
		if len(socks) == 0 {
			return fmt.Errorf("no machine sockets found under %s", conf.RunDir)
		}
	}

	for _, sock := range socks {
		g, err := mgr.AdoptSocket(ctx, sock)
		if err != nil {
			return fmt.Errorf("adopt %s: %w", sock, err)
		}
		logger.Infof(ctx, "watching %s (%s)", g.Name(), g.UUID())
	}

	mgr.Hub().Subscribe(func(ev notify.Event) {
		switch ev := ev.(type) {
		case notify.StatusChanged:
			fmt.Printf("%s: status changed to %s\n", ev.Name, ev.State.Pretty())
		case notify.ConfigChanged:
			fmt.Printf("%s: config changed\n", ev.Name)
		case notify.ResourcesSampled:
			if quietSamples {
				return
			}
			g, ok := mgr.Guest(ev.Name)
			if !ok {
				return
			}
			s := g.Latest()
			fmt.Printf("%s: cpu %.1f%% mem %s disk %.1fKiB/s net %.1fKiB/s\n",
				ev.Name, s.CPUPercent, g.MemoryPretty(),
				g.DiskIORate(), g.NetworkTrafficRate())
		}
	})

	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error { return mgr.Run(ctx) })
	if cfgFile != "" {
		eg.Go(func() error {
			return config.Watch(ctx, cfgFile, mgr.ApplyConfig)
		})
	}
	return eg.Wait()
}
