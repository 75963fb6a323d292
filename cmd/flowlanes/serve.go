package main

import (
	"errors"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/rendis/flowlanes/internal/logging"
	"github.com/rendis/flowlanes/internal/panel"
	"github.com/rendis/flowlanes/internal/streaming"
	"github.com/rendis/flowlanes/pkg/mcp"
)

func (a *app) serveCmd() *cobra.Command {
	var (
		listen    string
		noStore   bool
		withPanel bool
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the MCP tool server over stdio, or HTTP with --listen",
		Long: `Run the MCP tool server. With --listen the streamable HTTP transport is
served at /mcp; --panel additionally serves a browser view of the diagram
database at / with live change events.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if withPanel && (listen == "" || noStore) {
				return errors.New("--panel needs --listen and the diagram database")
			}
			ctx := logging.WithSource(cmd.Context(), "mcp")
			deps := mcp.ServerDeps{
				Codec:  a.codec,
				Logger: a.logger,
				BinDir: a.cfg.MermaidASCIIDir,
			}
			if !noStore {
				s, err := a.openStore(cmd)
				if err != nil {
					return err
				}
				defer s.Close()
				deps.Store = s
			}

			var handler http.Handler
			if withPanel {
				hub := streaming.NewMemoryHub()
				deps.Hub = hub
				p, err := panel.NewPanelServer(panel.PanelDeps{
					Store:  deps.Store,
					Hub:    hub,
					Codec:  a.codec,
					Logger: a.logger,
					BinDir: a.cfg.MermaidASCIIDir,
				})
				if err != nil {
					return err
				}
				handler = p.Handler()
			}

			srv, err := mcp.NewServer(deps)
			if err != nil {
				return err
			}
			if listen != "" {
				return srv.ListenHTTP(ctx, listen, handler)
			}
			a.logger.InfoContext(ctx, "mcp stdio server started", "version", mcp.Version)
			return srv.Serve(ctx)
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "serve streamable HTTP on this address instead of stdio, e.g. :4100")
	cmd.Flags().BoolVar(&noStore, "no-store", false, "run without the diagram database")
	cmd.Flags().BoolVar(&withPanel, "panel", false, "serve the diagram browser at / (requires --listen)")
	return cmd
}
