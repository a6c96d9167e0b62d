package cmd

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"anemia-detect-go/internal/fetcher"
	"anemia-detect-go/internal/service"
	"anemia-detect-go/internal/tui"
)

var tuiCmd = &cobra.Command{
	Use:   "tui",
	Short: "Fill in the analysis form interactively in the terminal",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		// 终端界面占用stdout，不输出日志
		logger := zap.NewNop()
		backend := fetcher.NewBackendClient(cfg.BackendURL, cfg.BackendTimeout, logger)
		return tui.Run(service.NewSession(backend, logger))
	},
}

func init() {
	rootCmd.AddCommand(tuiCmd)
}
