package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/azalea-rs/azalea-viaversion/internal/auth"
	"github.com/azalea-rs/azalea-viaversion/internal/plugin"
	pkgerrors "github.com/azalea-rs/azalea-viaversion/pkg/errors"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the translation proxy standalone",
	Long: `Start the supervised ViaProxy instance without a host bot framework and
keep it running until interrupted. Useful for debugging a translation
setup: point any client at the printed local address.

Standalone mode has no account store, so online-mode servers that require
session authentication will reject the join; use it against offline-mode
servers.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		protocolVersion, _ := cmd.Flags().GetString("version")
		if protocolVersion == "" {
			return fmt.Errorf("--version is required (e.g. --version 1.21.4)")
		}

		p := plugin.New(plugin.Options{
			DataDir:  appInstance.DataDir,
			Sessions: offlineSessionStore{},
			Store:    appInstance.Storage,
		})

		if err := p.Start(cmd.Context(), protocolVersion); err != nil {
			return err
		}

		fmt.Printf("Translating to %s, point clients at %s\n",
			protocolVersion, p.Supervisor().Addr())
		fmt.Println("Press Ctrl+C to stop.")

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
		<-sigCh

		return p.Stop(context.Background())
	},
}

func init() {
	runCmd.Flags().String("version", "", "target protocol version, e.g. 1.21.4")
}

// offlineSessionStore is the standalone-mode session store: there is no
// host account store to relay into, so every lookup is unavailable.
type offlineSessionStore struct{}

func (offlineSessionStore) ValidSession(ctx context.Context, profileID string) (auth.SessionMaterial, error) {
	return auth.SessionMaterial{}, pkgerrors.ErrUnknownProfile
}
