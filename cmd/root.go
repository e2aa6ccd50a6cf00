package cmd

import (
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	configCmd "github.com/sidkik/dbkernel/cmd/config"
	"github.com/sidkik/dbkernel/cmd/exec"
	"github.com/sidkik/dbkernel/cmd/run"
	syncCmd "github.com/sidkik/dbkernel/cmd/sync"
	"github.com/sidkik/dbkernel/cmd/util"
	"github.com/sidkik/dbkernel/cmd/version"
	"github.com/sidkik/dbkernel/cmd/watch"
)

// verboseLogKey is the environment variable used to enable verbose logging.
// When it's set to `true`, Debug events are logged, rather than just Info and
// above.
const verboseLogKey = "DBKERNEL_LOG_VERBOSE"

// Execute runs the main CLI process.
func Execute() {
	if os.Getenv(verboseLogKey) == "true" {
		log.SetLevel(log.DebugLevel)
	}

	rootCmd := &cobra.Command{
		Use:   "dbkernel",
		Short: "Run code from a local project on a Databricks cluster",
		Long: "dbkernel keeps a Databricks execution context open for the " +
			"project in the working directory,\nand syncs the project into the " +
			"cluster before each command runs.",
		SilenceUsage: true,

		// The call to rootCmd.Execute prints the error, so we silence errors
		// here to avoid double printing.
		SilenceErrors: true,
	}
	rootCmd.AddCommand(
		configCmd.New(),
		exec.New(),
		run.New(),
		syncCmd.New(),
		version.New(),
		watch.New(),
	)

	if err := rootCmd.Execute(); err != nil {
		util.HandleFatalError(err)
	}
}
