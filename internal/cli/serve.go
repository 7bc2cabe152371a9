package cli

import (
	"github.com/spf13/cobra"

	"github.com/therickybobbeh/depscan/internal/config"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the scan API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		log := newLogger()
		app := buildApp(log)
		if serveAddr != "" {
			app.Config.PORT = serveAddr
		}
		return config.Bootstrap(app)
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "port", "", "listen port (overrides PORT)")
	rootCmd.AddCommand(serveCmd)
}
