package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show cached artifacts and recent proxy runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		artifacts, err := appInstance.Storage.GetAllArtifacts(ctx)
		if err != nil {
			return err
		}

		if len(artifacts) == 0 {
			fmt.Println("No cached artifacts. Run 'azalea-viaversion fetch' first.")
		} else {
			fmt.Println("Cached artifacts:")
			for _, a := range artifacts {
				fmt.Printf("  ViaProxy %s  %d bytes  fetched %s  verified %s\n",
					a.Version, a.Size,
					a.FetchedAt.Format("2006-01-02 15:04"),
					a.LastVerifiedAt.Format("2006-01-02 15:04"))
			}
		}

		runs, err := appInstance.Storage.GetRecentRuns(ctx, 10)
		if err != nil {
			return err
		}

		if len(runs) > 0 {
			fmt.Println("\nRecent proxy runs:")
			for _, r := range runs {
				outcome := r.Outcome
				if outcome == "" {
					outcome = "running"
				}
				fmt.Printf("  pid %-6d  %s  port %-5d  started %s  %s\n",
					r.PID, r.Version, r.BindPort,
					r.StartedAt.Format("2006-01-02 15:04:05"), outcome)
			}
		}

		return nil
	},
}
