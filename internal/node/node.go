// Package node assembles a master or slave process: the engine loop that owns
// the scene, the replication manager, both transport channels and the
// optional HTTP API.
package node

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Abhio2i/TDF-sub001/internal/api"
	"github.com/Abhio2i/TDF-sub001/internal/config"
	"github.com/Abhio2i/TDF-sub001/internal/engine"
	"github.com/Abhio2i/TDF-sub001/internal/replication"
	"github.com/Abhio2i/TDF-sub001/internal/scene"
	"github.com/Abhio2i/TDF-sub001/internal/simulation"
	"github.com/Abhio2i/TDF-sub001/internal/store"
	"github.com/Abhio2i/TDF-sub001/internal/transport"
)

const (
	defaultReconnectDelay = time.Second
	shutdownTimeout       = 5 * time.Second
)

// Options configures a Node. Zero values select engine and transport defaults.
type Options struct {
	Role replication.Role

	// ListenAddr is the websocket bind address of a master.
	ListenAddr string
	// Path is the websocket upgrade path.
	Path string
	// UpstreamURL is the master a slave dials.
	UpstreamURL string
	// ReconnectDelay is the pause before redialing a lost or unreachable master.
	ReconnectDelay time.Duration

	// TelemetryBind is the local UDP address. Empty disables telemetry.
	TelemetryBind string
	// TelemetryPeerPort is the UDP port frames are sent to.
	TelemetryPeerPort int

	TickInterval        time.Duration
	QueueSize           int
	SendBuffer          int
	ResyncAfterFailures int
	// StaleAfter is how long a slave tolerates an entity without frames
	// before reporting it. Zero disables the report.
	StaleAfter time.Duration

	// APIListenAddr enables the HTTP API when set.
	APIListenAddr string
	APIToken      string

	// Store backs the scenario routes and Autoload. May be nil.
	Store store.Store
	// Autoload names a scenario a master loads before serving.
	Autoload string
}

// OptionsFromConfig maps loaded configuration onto node options for role.
func OptionsFromConfig(cfg *config.Config, role replication.Role, st store.Store) Options {
	return Options{
		Role:                role,
		ListenAddr:          cfg.Network.ListenAddr,
		Path:                cfg.Network.Path,
		UpstreamURL:         cfg.Network.UpstreamURL,
		TelemetryBind:       cfg.Network.TelemetryBind(),
		TelemetryPeerPort:   cfg.Network.TelemetryPort,
		TickInterval:        cfg.Simulation.TickInterval,
		QueueSize:           cfg.Replication.QueueSize,
		SendBuffer:          cfg.Replication.SendBuffer,
		ResyncAfterFailures: cfg.Replication.ResyncAfterFailures,
		StaleAfter:          cfg.Replication.StaleAfter,
		APIListenAddr:       cfg.API.ListenAddr,
		APIToken:            cfg.API.AuthToken,
		Store:               st,
		Autoload:            cfg.Scenario.Autoload,
	}
}

// endpoint is the part of transport.Server and transport.Client a node drives.
type endpoint interface {
	replication.Sender
	Events() <-chan transport.Event
	AttachTelemetry(t *transport.Telemetry)
	Close() error
}

// Node is one running master or slave.
type Node struct {
	opts   Options
	logger *slog.Logger

	loop *engine.Loop
	mgr  *replication.Manager

	ep        endpoint
	server    *transport.Server
	client    *transport.Client
	telemetry *transport.Telemetry

	wsListener  net.Listener
	apiListener net.Listener
	apiSrv      *http.Server
}

// New binds every socket the node needs and wires its components. Nothing
// runs until Run.
func New(opts Options, logger *slog.Logger) (_ *Node, err error) {
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = defaultReconnectDelay
	}
	logger = logger.With("node", opts.Role.String())
	n := &Node{opts: opts, logger: logger}
	defer func() {
		if err != nil {
			n.closeSockets()
		}
	}()

	h := scene.New()
	n.loop = engine.New(h, engine.Options{TickInterval: opts.TickInterval, QueueSize: opts.QueueSize}, logger)

	topts := transport.Options{Path: opts.Path, SendBuffer: opts.SendBuffer}
	switch opts.Role {
	case replication.Master:
		n.server = transport.NewServer(topts, logger)
		n.ep = n.server
		n.wsListener, err = net.Listen("tcp", opts.ListenAddr)
		if err != nil {
			return nil, fmt.Errorf("node: listen %s: %w", opts.ListenAddr, err)
		}
	case replication.Slave:
		if opts.UpstreamURL == "" {
			return nil, errors.New("node: slave requires an upstream url")
		}
		n.client = transport.NewClient(topts, logger)
		n.ep = n.client
	default:
		return nil, fmt.Errorf("node: unknown role %v", opts.Role)
	}

	if opts.TelemetryBind != "" {
		n.telemetry, err = transport.ListenTelemetry(opts.TelemetryBind, opts.TelemetryPeerPort, logger)
		if err != nil {
			return nil, err
		}
		n.ep.AttachTelemetry(n.telemetry)
	}

	n.mgr = replication.New(h, n.ep, opts.Role, replication.Options{
		ResyncAfterFailures: opts.ResyncAfterFailures,
	}, logger)
	n.registerTicks()

	if opts.APIListenAddr != "" {
		n.apiListener, err = net.Listen("tcp", opts.APIListenAddr)
		if err != nil {
			return nil, fmt.Errorf("node: api listen %s: %w", opts.APIListenAddr, err)
		}
		srv := api.NewServer(n.loop, opts.Store, n.mgr.Peers, logger, opts.APIToken)
		srv.SetReplica(opts.Role == replication.Slave)
		n.apiSrv = &http.Server{
			Handler:           srv.Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		}
	}
	return n, nil
}

// registerTicks installs the per-tick work. The master integrates motion and
// then broadcasts a frame; slaves only follow frames.
func (n *Node) registerTicks() {
	switch n.opts.Role {
	case replication.Master:
		n.loop.OnTick(simulation.Step)
		n.loop.OnTick(func(*scene.Hierarchy, time.Duration) { n.mgr.BroadcastFrame() })
	case replication.Slave:
		if n.opts.StaleAfter <= 0 {
			return
		}
		var sinceCheck time.Duration
		n.loop.OnTick(func(_ *scene.Hierarchy, dt time.Duration) {
			sinceCheck += dt
			if sinceCheck < n.opts.StaleAfter {
				return
			}
			sinceCheck = 0
			if stale := n.mgr.StaleEntities(n.opts.StaleAfter); len(stale) > 0 {
				n.logger.Warn("node: entities without recent frames", "count", len(stale), "ids", stale)
			}
		})
	}
}

// Executor exposes the engine loop for API and MCP surfaces.
func (n *Node) Executor() *engine.Loop { return n.loop }

// URL returns the websocket URL slaves dial, or "" on a slave.
func (n *Node) URL() string {
	if n.wsListener == nil {
		return ""
	}
	path := n.opts.Path
	if path == "" {
		path = "/ws"
	}
	return "ws://" + n.wsListener.Addr().String() + path
}

// APIAddr returns the bound API address, or "" when the API is disabled.
func (n *Node) APIAddr() string {
	if n.apiListener == nil {
		return ""
	}
	return n.apiListener.Addr().String()
}

// TelemetryAddr returns the bound UDP address, or nil when telemetry is disabled.
func (n *Node) TelemetryAddr() net.Addr {
	if n.telemetry == nil {
		return nil
	}
	return n.telemetry.LocalAddr()
}

// Peers reports replication peer states from the loop goroutine.
func (n *Node) Peers(ctx context.Context) ([]replication.PeerStatus, error) {
	var out []replication.PeerStatus
	err := n.loop.Call(ctx, func(*scene.Hierarchy) error {
		out = n.mgr.Peers()
		return nil
	})
	return out, err
}

// Run drives the node until ctx is cancelled or a component fails.
func (n *Node) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return n.loop.Run(gctx) })
	g.Go(func() error { return n.pump(gctx) })
	g.Go(func() error {
		<-gctx.Done()
		return n.closeTransport()
	})

	switch n.opts.Role {
	case replication.Master:
		g.Go(func() error {
			if err := n.autoload(gctx); err != nil {
				return err
			}
			if err := n.server.Serve(n.wsListener); err != nil && !errors.Is(err, transport.ErrClosed) {
				return err
			}
			return nil
		})
	case replication.Slave:
		g.Go(func() error { return n.connectUpstream(gctx) })
	}

	if n.apiSrv != nil {
		g.Go(func() error {
			n.logger.Info("node: api listening", "addr", n.apiListener.Addr().String())
			if err := n.apiSrv.Serve(n.apiListener); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("node: api serve: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			return api.Shutdown(n.apiSrv, shutdownTimeout)
		})
	}

	err := g.Wait()
	<-n.loop.Done()
	n.mgr.Close()
	n.logger.Info("node: stopped")
	if errors.Is(err, context.Canceled) && ctx.Err() != nil {
		return nil
	}
	return err
}

// pump moves transport events onto the loop goroutine in arrival order.
func (n *Node) pump(ctx context.Context) error {
	events := n.ep.Events()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-events:
			err := n.loop.Submit(ctx, func(*scene.Hierarchy) { n.mgr.HandleTransportEvent(ev) })
			if err != nil {
				if ctx.Err() != nil || errors.Is(err, engine.ErrStopped) {
					return nil
				}
				n.logger.Warn("node: dropping transport event", "type", ev.Type.String(), "error", err)
			}
		}
	}
}

// connectUpstream keeps one connection to the master for the node's
// lifetime: it dials until the master answers, waits for the connection to
// drop, then dials again. Each open event triggers a fresh snapshot request.
func (n *Node) connectUpstream(ctx context.Context) error {
	for {
		id, err := n.client.Connect(ctx, n.opts.UpstreamURL)
		switch {
		case err == nil:
			n.logger.Info("node: connected upstream", "peer", id, "url", n.opts.UpstreamURL)
			select {
			case <-ctx.Done():
				return nil
			case <-n.client.Gone(id):
			}
			n.logger.Warn("node: upstream lost, reconnecting", "peer", id, "url", n.opts.UpstreamURL)
		case errors.Is(err, transport.ErrClosed) || ctx.Err() != nil:
			return nil
		default:
			n.logger.Warn("node: upstream dial failed", "url", n.opts.UpstreamURL, "error", err)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(n.opts.ReconnectDelay):
		}
	}
}

// autoload replaces the tree with the configured scenario.
func (n *Node) autoload(ctx context.Context) error {
	if n.opts.Autoload == "" || n.opts.Store == nil {
		return nil
	}
	doc, err := n.opts.Store.Load(ctx, n.opts.Autoload)
	if err != nil {
		return fmt.Errorf("node: autoload %s: %w", n.opts.Autoload, err)
	}
	if err := n.loop.Call(ctx, func(h *scene.Hierarchy) error { return h.FromDocument(doc) }); err != nil {
		return fmt.Errorf("node: autoload %s: %w", n.opts.Autoload, err)
	}
	n.logger.Info("node: scenario loaded", "name", n.opts.Autoload)
	return nil
}

func (n *Node) closeTransport() error {
	err := n.ep.Close()
	if n.wsListener != nil {
		// Already closed when the server was serving.
		_ = n.wsListener.Close()
	}
	return err
}

// closeSockets releases whatever New bound before failing.
func (n *Node) closeSockets() {
	if n.wsListener != nil {
		_ = n.wsListener.Close()
	}
	if n.apiListener != nil {
		_ = n.apiListener.Close()
	}
	if n.ep != nil {
		_ = n.ep.Close()
	} else if n.telemetry != nil {
		_ = n.telemetry.Close()
	}
}
