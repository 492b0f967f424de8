package cmd

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	appLogger "github.com/FACorreiaa/go-places-chat/app/logger"
	"github.com/FACorreiaa/go-places-chat/config"
)

var (
	cfg    config.Config
	logger *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "places-chat",
	Short: "Conversational places search",
	Long: `
places-chat turns a conversation into a places search, narrates the results
and re-ranks them as the conversation goes on.
`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		var err error
		cfg, err = config.InitConfig()
		if err != nil {
			return err
		}
		logger = appLogger.New(cfg.Mode, cmd.ErrOrStderr())
		slog.SetDefault(logger)
		return nil
	},
}

var Version = "dev"

func Execute(version string) {
	Version = version
	rootCmd.Version = version

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
