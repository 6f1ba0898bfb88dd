package main

import (
	"strconv"

	"github.com/spf13/cobra"
)

// languageFlag 返回 --language，未设置时取配置值
func languageFlag(cmd *cobra.Command, cfg *Config) string {
	if v, _ := cmd.Flags().GetString("language"); v != "" {
		return v
	}
	return cfg.Language
}

func newFileCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "file <audio>",
		Short: "上传本地音频文件并转写 (POST /transcribe)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := LoadConfig(cmd)
			noTimestamps, _ := cmd.Flags().GetBool("no-timestamps")
			fields := map[string]string{
				"language":   languageFlag(cmd, cfg),
				"timestamps": strconv.FormatBool(!noTimestamps),
			}
			resp, err := NewAPIClient(cfg).UploadFiles("/transcribe", "audio", args, fields)
			if err != nil {
				return err
			}
			return printOutput(cmd.OutOrStdout(), cfg.Output, resp)
		},
	}
	c.Flags().StringP("language", "l", "", "语言代码，auto 表示自动检测")
	c.Flags().Bool("no-timestamps", false, "不返回分段与时间信息")
	return c
}

func newURLCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "url <audio-url>",
		Short: "转写远程音频 (POST /transcribe-url)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := LoadConfig(cmd)
			noTimestamps, _ := cmd.Flags().GetBool("no-timestamps")
			body := map[string]interface{}{
				"url":        args[0],
				"language":   languageFlag(cmd, cfg),
				"timestamps": !noTimestamps,
			}
			resp, err := NewAPIClient(cfg).PostJSON("/transcribe-url", body)
			if err != nil {
				return err
			}
			return printOutput(cmd.OutOrStdout(), cfg.Output, resp)
		},
	}
	c.Flags().StringP("language", "l", "", "语言代码，auto 表示自动检测")
	c.Flags().Bool("no-timestamps", false, "不返回分段与时间信息")
	return c
}

func newLegacyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "legacy <audio>...",
		Short: "通过旧版接口批量转写 (POST /whisper)",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := LoadConfig(cmd)
			resp, err := NewAPIClient(cfg).UploadFiles("/whisper", "", args, nil)
			if err != nil {
				return err
			}
			return printOutput(cmd.OutOrStdout(), cfg.Output, resp)
		},
	}
}
