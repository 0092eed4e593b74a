package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var devicesCmd = &cobra.Command{
	Use:   "devices VM",
	Short: "List the machine's disks, interfaces, char and host devices",
	Args:  cobra.ExactArgs(1),
	RunE:  runDevices,
}

func runDevices(cmd *cobra.Command, args []string) error {
	ctx := commandContext(cmd)
	mgr, g, err := adoptMachine(ctx, args[0])
	if err != nil {
		return err
	}
	defer mgr.Close()

	disks, err := g.Disks(ctx)
	if err != nil {
		return err
	}
	for _, d := range disks {
		extra := ""
		if d.ReadOnly {
			extra += " ro"
		}
		if d.Shareable {
			extra += " shared"
		}
		fmt.Printf("disk      %-8s %s %s bus=%s%s\n", d.Target, d.Device, d.Path, d.Bus, extra)
	}

	nics, err := g.Interfaces(ctx)
	if err != nil {
		return err
	}
	for _, n := range nics {
		fmt.Printf("interface %-17s type=%s source=%s model=%s target=%s\n",
			n.MAC, n.Type, n.Source, n.Model, n.Target)
	}

	chars, err := g.CharDevices(ctx)
	if err != nil {
		return err
	}
	for _, c := range chars {
		dup := ""
		if c.ConsoleDup {
			dup = " (paired console)"
		}
		fmt.Printf("%-9s port=%s type=%s path=%s%s\n", c.Device, c.Port, c.Type, c.SourcePath, dup)
	}

	hosts, err := g.HostDevices(ctx)
	if err != nil {
		return err
	}
	for _, h := range hosts {
		fmt.Printf("hostdev   %s mode=%s type=%s\n", h.Label(), h.Mode, h.Type)
	}
	return nil
}
