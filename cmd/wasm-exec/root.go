package main

import (
	"os"

	"github.com/hashicorp/go-hclog"
	"github.com/spf13/cobra"

	_ "huawei.com/wasm-host-driver/wasm/engines/wasmedge"
	_ "huawei.com/wasm-host-driver/wasm/engines/wasmtime"
	_ "huawei.com/wasm-host-driver/wasm/engines/wazero"
)

var logLevel string

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "wasm-exec",
	Short: "Run WASM module functions with the driver host functions",
	Long: `wasm-exec instantiates a WASM module with one of the engines known to the
task driver, links the registered host functions and calls a single exported
function, reporting the result and the fuel consumed.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "log level: trace, debug, info, warn or error")
}

func newLogger(cmd *cobra.Command) hclog.Logger {
	return hclog.New(&hclog.LoggerOptions{
		Name:   "wasm-exec",
		Level:  hclog.LevelFromString(logLevel),
		Output: cmd.ErrOrStderr(),
	})
}
