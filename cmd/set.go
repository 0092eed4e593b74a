package cmd

import (
	"fmt"

	units "github.com/docker/go-units"
	"github.com/spf13/cobra"
)

var setCmd = func() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "set VM",
		Short: "Change machine settings in the persistent definition",
		Long: "Each given flag is applied as its own redefinition; unspecified " +
			"settings are left untouched. Changes take effect on the next start.",
		Args: cobra.ExactArgs(1),
		RunE: runSet,
	}
	cmd.Flags().Int("vcpus", 0, "vCPU count")
	cmd.Flags().String("cpuset", "", "vCPU pinning mask, e.g. 0-3 or 1,3,5-7 (with --vcpus)")
	cmd.Flags().String("memory", "", "current memory, e.g. 2GiB")
	cmd.Flags().String("max-memory", "", "maximum memory, e.g. 4GiB")
	cmd.Flags().String("boot", "", "first boot device: hd, cdrom, network, fd")
	cmd.Flags().String("clock", "", "clock offset: utc or localtime")
	cmd.Flags().String("enable-feature", "", "enable a feature flag (acpi, apic)")
	cmd.Flags().String("disable-feature", "", "disable a feature flag (acpi, apic)")
	return cmd
}()

func runSet(cmd *cobra.Command, args []string) error {
	ctx := commandContext(cmd)
	mgr, g, err := adoptMachine(ctx, args[0])
	if err != nil {
		return err
	}
	defer mgr.Close()

	if vcpus, _ := cmd.Flags().GetInt("vcpus"); vcpus > 0 {
		cpuset, _ := cmd.Flags().GetString("cpuset")
		if err := g.DefineVCPUs(ctx, vcpus, cpuset); err != nil {
			return err
		}
	}

	memStr, _ := cmd.Flags().GetString("memory")
	maxMemStr, _ := cmd.Flags().GetString("max-memory")
	if memStr != "" || maxMemStr != "" {
		currKB, err := parseMemKB(memStr)
		if err != nil {
			return fmt.Errorf("invalid --memory %q: %w", memStr, err)
		}
		maxKB, err := parseMemKB(maxMemStr)
		if err != nil {
			return fmt.Errorf("invalid --max-memory %q: %w", maxMemStr, err)
		}
		if err := g.DefineMemory(ctx, currKB, maxKB); err != nil {
			return err
		}
	}

	if boot, _ := cmd.Flags().GetString("boot"); boot != "" {
		if err := g.SetBootDevice(ctx, boot); err != nil {
			return err
		}
	}
	if clock, _ := cmd.Flags().GetString("clock"); clock != "" {
		if err := g.DefineClockOffset(ctx, clock); err != nil {
			return err
		}
	}
	if feature, _ := cmd.Flags().GetString("enable-feature"); feature != "" {
		if err := g.DefineFeature(ctx, feature, true); err != nil {
			return err
		}
	}
	if feature, _ := cmd.Flags().GetString("disable-feature"); feature != "" {
		if err := g.DefineFeature(ctx, feature, false); err != nil {
			return err
		}
	}
	return nil
}

// parseMemKB converts a human size ("2GiB") to KiB; "" means unchanged.
func parseMemKB(s string) (uint64, error) {
	if s == "" {
		return 0, nil
	}
	b, err := units.RAMInBytes(s)
	if err != nil {
		return 0, err
	}
	return uint64(b) / 1024, nil
}
