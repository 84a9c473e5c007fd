// -- cmd/root.go --
package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/zerofrost11/cortex-client/internal/config"
	"github.com/zerofrost11/cortex-client/internal/observability"
)

var (
	cfgFile string
	// cfg holds the resolved configuration for all subcommands.
	cfg *config.Config
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "cortex",
	Short: "Cortex is a terminal client for a remote browsing agent.",
	Long: `Cortex submits natural-language tasks to a remote autonomous agent over a
persistent websocket, streams the agent's progress, and keeps every
conversation on disk.`,
	// Version is dynamically set at build time. See cmd/version.go.
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// persistentPreRunE is assigned to rootCmd in init rather than in the
// composite literal above to avoid an initialization cycle (it calls
// initializeConfig, which refers back to rootCmd).
func persistentPreRunE(cmd *cobra.Command, args []string) error {
	// This function runs before any command, setting up config and logging.
	if err := initializeConfig(); err != nil {
		return err
	}

	resolved, err := config.NewConfigFromViper(viper.GetViper())
	if err != nil {
		// Initialize a fallback logger so the failure is still reported
		// through the usual channel.
		observability.InitializeLogger(config.LoggerConfig{Level: "info", Format: "console", ServiceName: "cortex"})
		return err
	}
	cfg = resolved

	observability.InitializeLogger(cfg.Logger())
	observability.GetLogger().Debug("Starting cortex",
		zap.String("version", Version),
		zap.String("agent_url", cfg.Agent().URL),
	)
	return nil
}

// ExecuteContext adds all child commands to the root command and runs it with
// the given context. Errors are reported here; the caller only needs the exit
// code.
func ExecuteContext(ctx context.Context) int {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		if logger := observability.GetLogger(); logger != nil {
			logger.Error("Command execution failed", zap.Error(err))
		}
		fmt.Fprintln(os.Stderr, "Error:", err)
		return 1
	}
	return 0
}

func init() {
	rootCmd.PersistentPreRunE = persistentPreRunE
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default is ./cortex.yaml)")
	rootCmd.PersistentFlags().String("url", "", "agent websocket URL (overrides config/env)")
	rootCmd.PersistentFlags().String("store-dir", "", "conversation store directory (overrides config/env)")
	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	rootCmd.AddCommand(newTaskCmd())
	rootCmd.AddCommand(newHistoryCmd())
}

// initializeConfig reads in the config file and environment variables, then
// layers flag overrides on top.
func initializeConfig() error {
	v := viper.GetViper()
	config.SetDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(".")
		v.AddConfigPath(config.DefaultStoreDir())
		v.SetConfigName("cortex")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix(config.EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found; proceed with defaults/env vars.
	}

	// Flags take precedence over both the file and the environment.
	if err := v.BindPFlag("agent.url", rootCmd.PersistentFlags().Lookup("url")); err != nil {
		return err
	}
	return v.BindPFlag("store.dir", rootCmd.PersistentFlags().Lookup("store-dir"))
}
