package cli

import (
	"github.com/spf13/cobra"

	"github.com/sprite-ai/solaudit/internal/api"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	Long: `Start an HTTP server exposing the solaudit engine.

Endpoints:
  GET  /health       Health check and configured sources
  POST /api/audit    Audit an address or inline source
  POST /api/scan     Run the pattern scanner on inline source
  POST /api/extract  Normalize raw analyzer output
  GET  /api/rules    List pattern scanner rules
  GET  /api/audits   Recent audits from the history store
  GET  /api/ws       WebSocket streaming audit progress and the report`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringP("addr", "a", "", "address to listen on (default from HTTP_ADDR)")
	serveCmd.Flags().String("replay", "", "use recorded analyzer responses from a directory")
}

func runServe(cmd *cobra.Command, args []string) error {
	replay, _ := cmd.Flags().GetString("replay")
	a, err := newApp(cmd, replay)
	if err != nil {
		return err
	}
	defer a.Close()

	addr, _ := cmd.Flags().GetString("addr")
	if addr == "" {
		addr = a.cfg.HTTPAddr
	}

	srv := api.New(addr, a.svc, a.stores.History, a.log)
	return srv.ListenAndServe(cmd.Context())
}
