package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var infoCmd = &cobra.Command{
	Use:   "info VM",
	Short: "Show machine status, configuration summary and resource usage",
	Args:  cobra.ExactArgs(1),
	RunE:  runInfo,
}

func runInfo(cmd *cobra.Command, args []string) error {
	ctx := commandContext(cmd)
	mgr, g, err := adoptMachine(ctx, args[0])
	if err != nil {
		return err
	}
	defer mgr.Close()

	// Rates need two samples; take them a second apart.
	if err := g.Tick(ctx, time.Now()); err != nil {
		return err
	}
	if g.IsActive() {
		time.Sleep(time.Second)
		if err := g.Tick(ctx, time.Now()); err != nil {
			return err
		}
	}

	fmt.Printf("Name:       %s\n", g.Name())
	fmt.Printf("UUID:       %s\n", g.UUID())
	fmt.Printf("Status:     %s\n", g.Status().Pretty())

	if hv, err := g.HVType(ctx); err == nil && hv != "" {
		fmt.Printf("Hypervisor: %s\n", hv)
	}
	if arch, err := g.Arch(ctx); err == nil && arch != "" {
		fmt.Printf("Arch:       %s\n", arch)
	}
	if emu, err := g.Emulator(ctx); err == nil && emu != "" {
		fmt.Printf("Emulator:   %s\n", emu)
	}
	if boot, err := g.BootDevice(ctx); err == nil && boot != "" {
		fmt.Printf("Boot:       %s\n", boot)
	}
	if offset, err := g.ClockOffset(ctx); err == nil && offset != "" {
		fmt.Printf("Clock:      %s\n", offset)
	}
	if pin, err := g.VCPUPinning(ctx); err == nil && pin != "" {
		fmt.Printf("CPU pin:    %s\n", pin)
	}
	if model, labelType, label, err := g.SecurityLabel(ctx); err == nil && model != "" {
		fmt.Printf("Security:   %s/%s %s\n", model, labelType, label)
	}

	fmt.Printf("vCPUs:      %d\n", g.VCPUCount())
	fmt.Printf("Memory:     %s / %s (%.1f%% of host)\n",
		g.MemoryPretty(), g.MaxMemoryPretty(), g.MemoryPercent())
	if g.IsActive() {
		fmt.Printf("CPU:        %.1f%%\n", g.CPUPercent())
		fmt.Printf("Disk I/O:   %.1f KiB/s read, %.1f KiB/s write\n",
			g.DiskReadRate(), g.DiskWriteRate())
		fmt.Printf("Network:    %.1f KiB/s rx, %.1f KiB/s tx\n",
			g.NetworkRxRate(), g.NetworkTxRate())
	}
	return nil
}
