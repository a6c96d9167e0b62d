// Package cmd contains the CLI commands for the anemia tool.
package cmd

import (
	"fmt"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"anemia-detect-go/config"
)

var (
	envFile    string
	backendURL string
	cfg        *config.Config
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "anemia",
	Short: "Anemia detection client - submit blood-test values to the analysis backend",
	Long: `anemia collects five blood-test values (género, hemoglobina, MCH, MCHC, MCV),
submits them to the anemia analysis backend and renders the diagnostic result
with recommendations and a nutrition guide.

Front-ends:
  serve    server-rendered web UI (/, /analisis) plus JSON and SSE endpoints
  analyze  one-shot submission from the command line
  tui      interactive terminal form`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loadConfig()
		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file to load before reading the environment")
	rootCmd.PersistentFlags().StringVar(&backendURL, "backend", "", "analysis backend base URL (overrides BACKEND_URL)")
}

// loadConfig 加载 .env 和环境变量，命令行参数优先
func loadConfig() {
	// .env 不存在时直接使用环境变量
	_ = godotenv.Load(envFile)

	cfg = config.Load()
	if backendURL != "" {
		cfg.BackendURL = backendURL
	}
}

// newLogger 按配置的级别创建生产环境logger
func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	zc := zap.NewProductionConfig()
	zc.Level = zap.NewAtomicLevelAt(lvl)
	return zc.Build()
}
