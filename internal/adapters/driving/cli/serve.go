package cli

import (
	"github.com/spf13/cobra"

	"github.com/custodia-labs/sercha-rag/internal/adapters/driving/api"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	Long: `Serves the REST API for uploads, search and question answering.
Requests are rate limited per client and endpoint class.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVarP(&serveAddr, "addr", "a", "", "listen address (default from config, :8080)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	a, err := loadApp(cmd)
	if err != nil {
		return err
	}

	addr := serveAddr
	if addr == "" && a.Config != nil {
		addr = a.Config.Server.Addr
	}

	server, err := api.NewServer(api.Config{Addr: addr, Limiter: a.Limiter}, api.Ports{
		Query:     a.Query,
		Ingestion: a.Ingestion,
	})
	if err != nil {
		return err
	}

	startMaintenance(cmd, a)

	cmd.Printf("HTTP API listening on %s\n", addr)
	return server.Run(cmd.Context())
}
