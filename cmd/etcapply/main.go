// etcapply 是 ETC 开户申请助手：本地界面服务 + 若干运维子命令。
//
// Usage:
//
//	etcapply serve --config config/connections.json
//	etcapply parse <file>
//	etcapply gen [-n N]
//	etcapply stock-in --car-num 苏A12345 [--obu-no N] [--etc-sn N]
//	etcapply endpoints
//	etcapply callbacks [--once]
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// version 构建时通过 -ldflags 注入
var version = "dev"

var rootFlags struct {
	configPath string
}

var rootCmd = &cobra.Command{
	Use:           "etcapply",
	Short:         "ETC account application assistant",
	Long:          "etcapply drives the 14-step ETC account application against the\nvendor back office and its database, pausing once for the SMS code.",
	SilenceUsage:  true,
	SilenceErrors: true,
	CompletionOptions: cobra.CompletionOptions{
		HiddenDefaultCmd: true,
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&rootFlags.configPath, "config", "c", "config/connections.json", "Connection config file")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(parseCmd)
	rootCmd.AddCommand(genCmd)
	rootCmd.AddCommand(stockInCmd)
	rootCmd.AddCommand(endpointsCmd)
	rootCmd.AddCommand(callbacksCmd)
	rootCmd.Version = version
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
