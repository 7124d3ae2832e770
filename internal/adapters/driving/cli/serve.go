package cli

import (
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the pipeline, scheduler and enabled surfaces",
	Long: `Run caseflow in the foreground: the document pipeline, the background
scheduler, and whichever of the HTTP API, intake directory and NATS relay
are enabled in the configuration. Stops on interrupt.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		s, err := requireServices()
		if err != nil {
			return err
		}
		if s.Serve == nil {
			return ErrNotConfigured
		}
		return s.Serve(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
