package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Abhio2i/TDF-sub001/internal/node"
	"github.com/Abhio2i/TDF-sub001/internal/replication"
)

func masterCmd() *cobra.Command {
	var scenario string

	cmd := &cobra.Command{
		Use:   "master",
		Short: "Run the authoritative node",
		Long: `Runs the master: accepts slaves on network.listen_addr, sends each new slave
a snapshot, relays structural edits between peers and broadcasts a telemetry
frame every simulation tick.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if scenario != "" {
				cfg.Scenario.Autoload = scenario
			}
			return runNode(cmd, replication.Master)
		},
	}

	cmd.Flags().StringVar(&scenario, "scenario", "", "scenario to load at startup (overrides scenario.autoload)")
	return cmd
}

func slaveCmd() *cobra.Command {
	var upstream string

	cmd := &cobra.Command{
		Use:   "slave",
		Short: "Run a replica that follows a master",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if upstream != "" {
				cfg.Network.UpstreamURL = upstream
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("slave: %w", err)
			}
			return runNode(cmd, replication.Slave)
		},
	}

	cmd.Flags().StringVar(&upstream, "upstream", "", "master websocket URL (overrides network.upstream_url)")
	return cmd
}

func runNode(cmd *cobra.Command, role replication.Role) error {
	logger := newLogger()

	st, err := newStore(logger)
	if err != nil {
		return fmt.Errorf("%s: opening scenario store: %w", role, err)
	}

	if cfg.API.ListenAddr != "" && cfg.API.AuthToken == "" {
		logger.Warn("HTTP API: auth is DISABLED; set TDF_API_AUTH_TOKEN or api.auth_token for production use")
	}
	logger.Debug("starting node", "role", role.String(), "api", cfg.API.String())

	n, err := node.New(node.OptionsFromConfig(cfg, role, st), logger)
	if err != nil {
		return fmt.Errorf("%s: %w", role, err)
	}
	return n.Run(cmd.Context())
}
