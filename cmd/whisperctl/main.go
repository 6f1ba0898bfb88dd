package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "whisperctl",
		Short:         "whisper-gateway 命令行客户端",
		Long:          "通过 HTTP 调用 whisper-gateway 的转写与状态接口。",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// 添加全局标志
	addGlobalFlags(rootCmd)

	rootCmd.AddCommand(newStatusCmd())
	rootCmd.AddCommand(newModelsCmd())
	rootCmd.AddCommand(newFileCmd())
	rootCmd.AddCommand(newURLCmd())
	rootCmd.AddCommand(newLegacyCmd())
	return rootCmd
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
