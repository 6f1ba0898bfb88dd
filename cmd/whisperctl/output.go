package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
)

// printOutput 按指定格式输出响应数据。
// text 模式下转写结果只输出文本，其余响应原样输出。
func printOutput(w io.Writer, format string, data []byte) error {
	if format == "text" {
		var res struct {
			Text    *string `json:"text"`
			Results []struct {
				Filename   string `json:"filename"`
				Transcript string `json:"transcript"`
			} `json:"results"`
		}
		if err := json.Unmarshal(data, &res); err == nil {
			switch {
			case res.Text != nil:
				_, err := fmt.Fprintln(w, *res.Text)
				return err
			case len(res.Results) > 0:
				for _, r := range res.Results {
					if _, err := fmt.Fprintf(w, "%s: %s\n", r.Filename, r.Transcript); err != nil {
						return err
					}
				}
				return nil
			}
		}
		_, err := fmt.Fprintln(w, string(data))
		return err
	}

	var out bytes.Buffer
	if err := json.Indent(&out, data, "", "  "); err != nil {
		// 非 JSON 数据直接输出
		_, err := fmt.Fprintln(w, string(data))
		return err
	}
	_, err := fmt.Fprintln(w, out.String())
	return err
}
