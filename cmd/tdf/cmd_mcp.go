package main

import (
	"context"
	"fmt"
	"log"
	"os"

	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/Abhio2i/TDF-sub001/internal/engine"
	tdfmcp "github.com/Abhio2i/TDF-sub001/internal/mcp"
	"github.com/Abhio2i/TDF-sub001/internal/node"
	"github.com/Abhio2i/TDF-sub001/internal/replication"
	"github.com/Abhio2i/TDF-sub001/internal/scene"
)

func mcpCmd() *cobra.Command {
	var (
		upstream   string
		standalone bool
		scenario   string
	)

	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Start the MCP (Model Context Protocol) server over stdio",
		Long: `Starts an MCP JSON-RPC 2.0 server that reads from stdin and writes to stdout.
All diagnostic logs go to stderr so that stdout remains exclusively MCP protocol traffic.

By default the server joins the master at network.upstream_url as a slave
without telemetry, so every tool call is replicated. With --standalone it edits
a private scene, optionally seeded from a stored scenario.

Tools exposed:
  scene_tree        return the hierarchy document
  add_profile       create a profile category
  add_folder        create a folder
  add_entity        create an entity
  add_component     attach a component and its prerequisites
  update_component  merge fields into a component
  remove_component  detach a component and its dependents
  rename            rename a profile, folder or entity
  remove            remove a node and its subtree`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger := newLogger()
			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			var (
				exec    tdfmcp.Executor
				stopped <-chan error
			)
			if standalone {
				loop := engine.New(scene.New(), engine.Options{
					TickInterval: cfg.Simulation.TickInterval,
					QueueSize:    cfg.Replication.QueueSize,
				}, logger)
				stopped = runAsync(func() error { return loop.Run(ctx) })
				if scenario != "" {
					if err := loadScenario(ctx, loop, scenario); err != nil {
						return err
					}
				}
				exec = loop
			} else {
				opts := node.OptionsFromConfig(cfg, replication.Slave, nil)
				if upstream != "" {
					opts.UpstreamURL = upstream
				}
				opts.TelemetryBind = ""
				opts.APIListenAddr = ""
				n, err := node.New(opts, logger)
				if err != nil {
					return fmt.Errorf("mcp: %w", err)
				}
				stopped = runAsync(func() error { return n.Run(ctx) })
				exec = n.Executor()
			}

			srv := tdfmcp.NewServer(exec, logger)

			// Use a standard log.Logger pointing at stderr for the mcp-go error logger.
			errLogger := log.New(os.Stderr, "mcp: ", log.LstdFlags)

			logger.Info("mcp: tdf MCP server starting", "transport", "stdio", "standalone", standalone)

			serveErr := mcpserver.ServeStdio(
				srv.MCPServer(),
				mcpserver.WithErrorLogger(errLogger),
			)
			cancel()
			if err := <-stopped; err != nil {
				return err
			}
			return serveErr
		},
	}

	cmd.Flags().StringVar(&upstream, "upstream", "", "master websocket URL (overrides network.upstream_url)")
	cmd.Flags().BoolVar(&standalone, "standalone", false, "edit a private scene instead of joining a master")
	cmd.Flags().StringVar(&scenario, "scenario", "", "stored scenario to load in standalone mode")
	return cmd
}

func runAsync(fn func() error) <-chan error {
	ch := make(chan error, 1)
	go func() { ch <- fn() }()
	return ch
}

func loadScenario(ctx context.Context, loop *engine.Loop, name string) error {
	st, err := newStore(newLogger())
	if err != nil {
		return fmt.Errorf("mcp: opening scenario store: %w", err)
	}
	doc, err := st.Load(ctx, name)
	if err != nil {
		return fmt.Errorf("mcp: %w", err)
	}
	return loop.Call(ctx, func(h *scene.Hierarchy) error { return h.FromDocument(doc) })
}
