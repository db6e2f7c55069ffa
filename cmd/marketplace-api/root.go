package main

import (
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/taskbridge/marketplace/internal/config"
)

var rootCmd = &cobra.Command{
	Use:          "marketplace-api",
	Short:        "Task marketplace API, ledger reconciler and schema migrations",
	SilenceUsage: true,
}

func init() {
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(reconcileCmd)
}

// overrides holds flag values that win over the environment when set.
type overrides struct {
	logLevel  string
	dbType    string
	ledger    string
	lockPoint string
}

var flags overrides

func addCommonFlags(fs *pflag.FlagSet) {
	fs.StringVar(&flags.logLevel, "log-level", "", "log level, overrides MARKETPLACE_LOG_LEVEL")
	fs.StringVar(&flags.dbType, "db-type", "", "database type (pgsql|sqlite), overrides DB_TYPE")
	fs.StringVar(&flags.ledger, "ledger", "", "ledger client (memory|gateway), overrides LEDGER_TYPE")
	fs.StringVar(&flags.lockPoint, "funds-lock-point", "", "when funds are locked (accept|offer), overrides LEDGER_FUNDS_LOCK_POINT")
}

func (o overrides) apply(cfg *config.Config) {
	if o.logLevel != "" {
		cfg.Service.LogLevel = o.logLevel
	}
	if o.dbType != "" {
		cfg.Database.Type = o.dbType
	}
	if o.ledger != "" {
		cfg.Ledger.Type = o.ledger
	}
	if o.lockPoint != "" {
		cfg.Ledger.FundsLockPoint = o.lockPoint
	}
}
