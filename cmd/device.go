package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/projecteru2/virtmon/types"
)

var addDeviceCmd = func() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add-device VM FRAGMENT.xml",
		Short: "Add a device fragment to the machine",
		Args:  cobra.ExactArgs(2),
		RunE:  runAddDevice,
	}
	cmd.Flags().Bool("live", false, "hot-attach to the running instance instead of redefining")
	return cmd
}()

var removeDeviceCmd = func() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "remove-device VM",
		Short: "Remove a device from the machine",
		Args:  cobra.ExactArgs(1),
		RunE:  runRemoveDevice,
	}
	cmd.Flags().Bool("live", false, "hot-detach from the running instance instead of redefining")
	addDeviceSelectorFlags(cmd)
	return cmd
}()

func addDeviceSelectorFlags(cmd *cobra.Command) {
	cmd.Flags().String("disk", "", "select a disk by target name")
	cmd.Flags().String("interface", "", "select an interface by MAC address")
	cmd.Flags().String("serial", "", "select a serial device by target port")
	cmd.Flags().String("parallel", "", "select a parallel device by target port")
	cmd.Flags().String("console", "", "select a console device by target port")
	cmd.Flags().String("graphics", "", "select a graphics device by type")
	cmd.Flags().String("sound", "", "select a sound device by model")
	cmd.Flags().String("video", "", "select a video device by model")
	cmd.Flags().String("input", "", "select an input device as TYPE:BUS")
}

// deviceIDFromFlags builds the device identity from whichever selector flag
// was given. Exactly one selector must be set.
func deviceIDFromFlags(cmd *cobra.Command) (types.DeviceID, error) {
	var ids []types.DeviceID

	if v, _ := cmd.Flags().GetString("disk"); v != "" {
		ids = append(ids, types.DiskID{Target: v})
	}
	if v, _ := cmd.Flags().GetString("interface"); v != "" {
		ids = append(ids, types.InterfaceID{MAC: v})
	}
	if v, _ := cmd.Flags().GetString("serial"); v != "" {
		ids = append(ids, types.CharID{Device: types.DeviceSerial, Port: v})
	}
	if v, _ := cmd.Flags().GetString("parallel"); v != "" {
		ids = append(ids, types.CharID{Device: types.DeviceParallel, Port: v})
	}
	if v, _ := cmd.Flags().GetString("console"); v != "" {
		ids = append(ids, types.CharID{Device: types.DeviceConsole, Port: v})
	}
	if v, _ := cmd.Flags().GetString("graphics"); v != "" {
		ids = append(ids, types.GraphicsID{Type: v})
	}
	if v, _ := cmd.Flags().GetString("sound"); v != "" {
		ids = append(ids, types.SoundID{Model: v})
	}
	if v, _ := cmd.Flags().GetString("video"); v != "" {
		ids = append(ids, types.VideoID{Model: v})
	}
	if v, _ := cmd.Flags().GetString("input"); v != "" {
		parts := strings.SplitN(v, ":", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("--input wants TYPE:BUS, got %q", v)
		}
		ids = append(ids, types.InputID{Type: parts[0], Bus: parts[1]})
	}

	if len(ids) != 1 {
		return nil, fmt.Errorf("exactly one device selector flag must be given")
	}
	return ids[0], nil
}

func runAddDevice(cmd *cobra.Command, args []string) error {
	ctx := commandContext(cmd)
	fragment, err := os.ReadFile(args[1])
	if err != nil {
		return fmt.Errorf("read fragment: %w", err)
	}

	mgr, g, err := adoptMachine(ctx, args[0])
	if err != nil {
		return err
	}
	defer mgr.Close()

	if live, _ := cmd.Flags().GetBool("live"); live {
		return g.AttachDevice(ctx, string(fragment))
	}
	return g.AddDevice(ctx, string(fragment))
}

func runRemoveDevice(cmd *cobra.Command, args []string) error {
	ctx := commandContext(cmd)
	id, err := deviceIDFromFlags(cmd)
	if err != nil {
		return err
	}

	mgr, g, err := adoptMachine(ctx, args[0])
	if err != nil {
		return err
	}
	defer mgr.Close()

	if live, _ := cmd.Flags().GetBool("live"); live {
		return g.DetachDevice(ctx, id)
	}
	return g.RemoveDevice(ctx, id)
}
