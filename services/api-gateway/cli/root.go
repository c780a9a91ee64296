package cli

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/ramiqadoumi/task-inbox/internal/cliutil"
	"github.com/ramiqadoumi/task-inbox/services/api-gateway/config"
)

const serviceName = "api-gateway"

var cfgFile string

var rootCmd = &cobra.Command{
	Use:          serviceName,
	Short:        "task-inbox API gateway — REST API for tasks, scheduling and ingestion",
	SilenceUsage: true,
}

// Execute is the entry point called from cmd/api-gateway/main.go.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(cliutil.InitConfig(&cfgFile, serviceName))

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file path (default: ./api-gateway.yaml)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level: debug | info | warn | error")
	rootCmd.PersistentFlags().String("postgres-dsn", config.Defaults().PostgresDSN, "PostgreSQL DSN")
	cliutil.BindFlag("log_level", rootCmd.PersistentFlags(), "log-level")
	cliutil.BindFlag("postgres_dsn", rootCmd.PersistentFlags(), "postgres-dsn")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(cliutil.NewInitCmd(serviceName, &cfgFile, config.Defaults()))
	rootCmd.AddCommand(cliutil.NewVersionCmd(serviceName))
}
