package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/azalea-rs/azalea-viaversion/internal/artifact"
)

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Download and verify the pinned proxy artifact",
	Long: `Ensure a verified copy of the pinned ViaProxy release is present in the
local cache, downloading it when missing or corrupted.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		desc := artifact.DefaultDescriptor()
		cache := artifact.NewCache(appInstance.DataDir, nil, appInstance.Storage)

		path, err := cache.Ensure(cmd.Context(), desc)
		if err != nil {
			return err
		}

		fmt.Printf("ViaProxy %s verified at %s\n", desc.Version, path)
		return nil
	},
}
