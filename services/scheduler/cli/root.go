package cli

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/ramiqadoumi/task-inbox/internal/cliutil"
	"github.com/ramiqadoumi/task-inbox/services/scheduler/config"
)

const serviceName = "scheduler"

var cfgFile string

var rootCmd = &cobra.Command{
	Use:          serviceName,
	Short:        "task-inbox scheduler — periodically auto-schedules every user's inbox",
	SilenceUsage: true,
}

// Execute is the entry point called from cmd/scheduler/main.go.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(cliutil.InitConfig(&cfgFile, serviceName))

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file path (default: ./scheduler.yaml)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level: debug | info | warn | error")
	cliutil.BindFlag("log_level", rootCmd.PersistentFlags(), "log-level")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(cliutil.NewInitCmd(serviceName, &cfgFile, config.Defaults()))
	rootCmd.AddCommand(cliutil.NewVersionCmd(serviceName))
}
