package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"huawei.com/wasm-host-driver/wasm/engines"
	"huawei.com/wasm-host-driver/wasm/hostfuncs"
)

var enginesCmd = &cobra.Command{
	Use:   "engines",
	Short: "List the registered engines",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, _ []string) {
		for _, name := range engines.Names() {
			fmt.Fprintln(cmd.OutOrStdout(), name)
		}
	},
}

var hostFuncsCmd = &cobra.Command{
	Use:   "hostfuncs",
	Short: "List the registered host functions with their signatures",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, _ []string) {
		for _, signature := range hostfuncs.Describe() {
			fmt.Fprintln(cmd.OutOrStdout(), signature)
		}
	},
}

func init() {
	rootCmd.AddCommand(enginesCmd, hostFuncsCmd)
}
