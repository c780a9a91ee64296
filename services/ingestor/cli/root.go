package cli

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/ramiqadoumi/task-inbox/internal/cliutil"
	"github.com/ramiqadoumi/task-inbox/services/ingestor/config"
)

const serviceName = "ingestor"

var cfgFile string

var rootCmd = &cobra.Command{
	Use:          serviceName,
	Short:        "task-inbox ingestor — turns source payloads from Kafka into tasks",
	SilenceUsage: true,
}

// Execute is the entry point called from cmd/ingestor/main.go.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(cliutil.InitConfig(&cfgFile, serviceName))

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file path (default: ./ingestor.yaml)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level: debug | info | warn | error")
	cliutil.BindFlag("log_level", rootCmd.PersistentFlags(), "log-level")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(cliutil.NewInitCmd(serviceName, &cfgFile, config.Defaults()))
	rootCmd.AddCommand(cliutil.NewVersionCmd(serviceName))
}
