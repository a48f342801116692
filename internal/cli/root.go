package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/azalea-rs/azalea-viaversion/internal/app"
)

var (
	appInstance *app.App
	version     = "dev"
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "azalea-viaversion",
	Short: "Protocol-version translation proxy supervisor for azalea bots",
	Long: `azalea-viaversion - protocol-version translation for azalea bots

  Supervises a local ViaProxy instance so bots can join servers running a
  different protocol version than the framework natively speaks.

  Quick start:
    azalea-viaversion fetch
    azalea-viaversion run --version 1.21.4
    azalea-viaversion status`,
	Version: version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		appInstance, err = app.New()
		if err != nil {
			return fmt.Errorf("failed to initialize application: %w", err)
		}
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if appInstance != nil {
			return appInstance.Close()
		}
		return nil
	},
}

// Execute executes the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(fetchCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(statusCmd)
}
