package cmd

import (
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/msomdec/microlearn/internal/domain"
	"github.com/msomdec/microlearn/internal/roster"
)

var rosterCmd = &cobra.Command{
	Use:   "roster",
	Short: "Load and validate the encrypted roster without serving",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		secret := os.Getenv(secretEnv)
		if secret == "" {
			return fmt.Errorf("%w: %s is required", domain.ErrConfiguration, secretEnv)
		}
		source, _ := cmd.Flags().GetString("source")
		if source == "" {
			source = os.Getenv("MLP_ROSTER_SOURCE")
		}
		if source == "" {
			return fmt.Errorf("%w: --source or MLP_ROSTER_SOURCE is required", domain.ErrConfiguration)
		}
		formatName, _ := cmd.Flags().GetString("format")
		format, err := roster.ParseFormat(formatName)
		if err != nil {
			return err
		}

		client := &http.Client{Timeout: 30 * time.Second}
		r, err := roster.Load(cmd.Context(), roster.NewSource(source, client), format, secret)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%d learners\n", r.Len())
		return nil
	},
}

func init() {
	rosterCmd.Flags().String("source", "", "Roster file path or URL (defaults to MLP_ROSTER_SOURCE)")
	rosterCmd.Flags().String("format", "xlsx", "Roster format: xlsx or csv")
}
