package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var mediaCmd = func() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "media VM",
		Short: "Insert or eject removable media",
		Args:  cobra.ExactArgs(1),
		RunE:  runMedia,
	}
	cmd.Flags().String("disk", "", "target name of the removable drive (required)")
	cmd.Flags().String("insert", "", "path of the media to insert; omit to eject")
	cmd.Flags().String("source-type", "file", "media source type: file or block")
	cmd.Flags().Bool("live", false, "swap on the running instance only, without persisting")
	_ = cmd.MarkFlagRequired("disk")
	return cmd
}()

func runMedia(cmd *cobra.Command, args []string) error {
	ctx := commandContext(cmd)
	target, _ := cmd.Flags().GetString("disk")
	path, _ := cmd.Flags().GetString("insert")
	sourceType, _ := cmd.Flags().GetString("source-type")
	if sourceType != "file" && sourceType != "block" {
		return fmt.Errorf("--source-type must be file or block, got %q", sourceType)
	}

	mgr, g, err := adoptMachine(ctx, args[0])
	if err != nil {
		return err
	}
	defer mgr.Close()

	id := diskIDFromTarget(target)
	if live, _ := cmd.Flags().GetBool("live"); live {
		return g.HotSwapMedia(ctx, id, path, sourceType)
	}
	return g.ChangeRemovableMedia(ctx, id, path, sourceType)
}
