package main

import (
	"os"

	"github.com/spf13/cobra"
)

var configPath string // overridable via --config flag

func main() {
	root := &cobra.Command{
		Use:          "lark-enhance",
		Short:        "Feishu message enhancement for an agent gateway",
		Long:         "lark-enhance fills in empty Feishu messages from their quoted parent and rewrites agent replies into Feishu-renderable markdown.",
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config.toml (default: $CONFIG_PATH or ./config.toml)")

	root.AddCommand(serveCmd())
	root.AddCommand(normalizeCmd())
	root.AddCommand(classifyCmd())
	root.AddCommand(versionCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}
