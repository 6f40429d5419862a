// Command locnetd runs one LocNet overlay node: it opens the Spatial Store,
// builds the Overlay Engine, bootstraps against configured seeds, and serves
// the NodeToNode and LocalService TCP ports until interrupted.
//
// Grounded on the teacher's cmd/lethe/main.go — a cobra rootCmd with a
// daemon subcommand that wires collaborators and then blocks on SIGINT/
// SIGTERM — generalized to the overlay's two listening ports, its four
// maintenance tasks, and a status/register-service set of commands that
// dial a running daemon instead of reading a local directory file.
package main

import (
	"fmt"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/deuszex/iop-location-based-network/internal/changebus"
	"github.com/deuszex/iop-location-based-network/internal/dispatch"
	"github.com/deuszex/iop-location-based-network/internal/geo"
	"github.com/deuszex/iop-location-based-network/internal/node"
	"github.com/deuszex/iop-location-based-network/internal/nodeproxy"
	"github.com/deuszex/iop-location-based-network/internal/protocol"
	"github.com/deuszex/iop-location-based-network/internal/randsrc"
	"github.com/deuszex/iop-location-based-network/internal/registry"
	"github.com/deuszex/iop-location-based-network/internal/scheduler"
	"github.com/deuszex/iop-location-based-network/internal/session"
	"github.com/deuszex/iop-location-based-network/internal/spatial"
)

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".locnetd"
	}
	return filepath.Join(home, ".locnetd")
}

var rootCmd = &cobra.Command{
	Use:   "locnetd",
	Short: "A location-based overlay node",
	Long:  "locnetd runs one node of a location-based P2P overlay: nodes index each other by GPS position and maintain a bounded neighbourhood of geographically close peers.",
}

// ─── serve ───────────────────────────────────────────────────────────────────

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the overlay node (this is all you need)",
	RunE: func(cmd *cobra.Command, args []string) error {
		flags := cmd.Flags()
		dataDir, _ := flags.GetString("data")
		nodeAddr, _ := flags.GetString("node-listen")
		clientAddr, _ := flags.GetString("client-listen")
		advertiseAddr, _ := flags.GetString("advertise")
		lat, _ := flags.GetFloat64("lat")
		lon, _ := flags.GetFloat64("lon")
		nodeID, _ := flags.GetString("node-id")
		seeds, _ := flags.GetStringSlice("bootstrap")
		neighbourhoodSize, _ := flags.GetInt("neighbourhood-size")
		maxHops, _ := flags.GetInt("max-hops")

		loc := geo.Location{LatitudeDeg: lat, LongitudeDeg: lon}
		if !loc.Valid() {
			return fmt.Errorf("invalid --lat/--lon: %v, %v is not a legal coordinate", lat, lon)
		}
		if nodeID == "" {
			nodeID = uuid.NewString()
		}

		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return fmt.Errorf("create data dir: %w", err)
		}

		log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Str("nodeId", nodeID).Logger()

		nodeLn, err := net.Listen("tcp", nodeAddr)
		if err != nil {
			return fmt.Errorf("listen on --node-listen: %w", err)
		}
		defer nodeLn.Close()
		clientLn, err := net.Listen("tcp", clientAddr)
		if err != nil {
			return fmt.Errorf("listen on --client-listen: %w", err)
		}
		defer clientLn.Close()

		nodePort := nodeLn.Addr().(*net.TCPAddr).Port
		clientPort := clientLn.Addr().(*net.TCPAddr).Port

		bus := changebus.New()
		store, err := spatial.Open(filepath.Join(dataDir, "spatial.db"), bus, clock.New(), randsrc.New())
		if err != nil {
			return fmt.Errorf("open spatial store: %w", err)
		}
		defer store.Close()

		self := protocol.NodeInfo{
			Profile: protocol.NodeProfile{
				NodeID: nodeID,
				Contact: protocol.NodeContact{
					Address:    advertiseAddr,
					NodePort:   nodePort,
					ClientPort: clientPort,
				},
			},
			Location: loc,
		}

		cfg := node.Config{
			Store:                   store,
			Registry:                registry.New(),
			Proxies:                 node.NewDefaultProxyFactory(nodeproxy.NewFactory()),
			Logger:                  log,
			Self:                    self,
			NeighbourhoodTargetSize: neighbourhoodSize,
			MaxNodeHops:             maxHops,
			Seeds:                   seeds,
		}
		n, err := node.New(cfg)
		if err != nil {
			return err
		}
		if err := n.Start(); err != nil {
			return fmt.Errorf("start node: %w", err)
		}

		if len(seeds) > 0 {
			log.Info().Strs("seeds", seeds).Msg("bootstrapping against seeds")
			n.InitializeWorld()
			n.InitializeNeighbourhood()
		}

		sched := scheduler.New(clock.New(), log,
			scheduler.Task{Name: "expire-old-nodes", Period: time.Minute, Run: n.ExpireOldNodes},
			scheduler.Task{Name: "renew-node-relations", Period: 15 * time.Minute, Run: n.RenewNodeRelations},
			scheduler.Task{Name: "discover-unknown-areas", Period: 5 * time.Minute, Run: n.DiscoverUnknownAreas},
			scheduler.Task{Name: "ensure-map-filled", Period: 10 * time.Minute, Run: n.EnsureMapFilled},
		)
		go sched.Run()
		defer sched.Stop()

		d := dispatch.New(n, bus, log)
		serveListener(nodeLn, d, log, "node")
		serveListener(clientLn, d, log, "client")

		log.Info().
			Int("nodePort", nodePort).
			Int("clientPort", clientPort).
			Float64("lat", lat).
			Float64("lon", lon).
			Msg("locnetd serving")

		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		<-sig
		log.Info().Msg("shutting down")
		return nil
	},
}

func serveListener(ln net.Listener, d *dispatch.Dispatcher, log zerolog.Logger, name string) {
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				log.Debug().Err(err).Str("listener", name).Msg("listener closed")
				return
			}
			go d.Serve(session.Accept(conn))
		}
	}()
}

// ─── status ──────────────────────────────────────────────────────────────────

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Query a running node's identity and neighbourhood",
	RunE: func(cmd *cobra.Command, args []string) error {
		addr, _ := cmd.Flags().GetString("client")
		factory := nodeproxy.NewFactory()
		p, err := factory.Connect(addr)
		if err != nil {
			return fmt.Errorf("connect to %s: %w", addr, err)
		}
		defer p.Close()

		info, err := p.GetNodeInfo()
		if err != nil {
			return err
		}
		colleagues, err := p.GetNodeCountByRelation(protocol.RelationColleague)
		if err != nil {
			return err
		}
		neighbours, err := p.GetNeighbourNodes()
		if err != nil {
			return err
		}

		fmt.Printf("Node ID    : %s\n", info.Profile.NodeID)
		fmt.Printf("Location   : %.6f, %.6f\n", info.Location.LatitudeDeg, info.Location.LongitudeDeg)
		fmt.Printf("Colleagues : %d\n", colleagues)
		fmt.Printf("Neighbours : %d\n", len(neighbours))
		for _, nb := range neighbours {
			fmt.Printf("  %-40s %.4f,%.4f\n", nb.Profile.NodeID, nb.Location.LatitudeDeg, nb.Location.LongitudeDeg)
		}
		return nil
	},
}

// ─── register-service ────────────────────────────────────────────────────────

var registerServiceCmd = &cobra.Command{
	Use:   "register-service <type> <address> <port>",
	Short: "Register a locally-hosted service on a running node",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		addr, _ := cmd.Flags().GetString("client")
		var port int
		if _, err := fmt.Sscanf(args[2], "%d", &port); err != nil {
			return fmt.Errorf("invalid port %q: %w", args[2], err)
		}

		factory := nodeproxy.NewFactory()
		p, err := factory.Connect(addr)
		if err != nil {
			return fmt.Errorf("connect to %s: %w", addr, err)
		}
		defer p.Close()

		if err := p.RegisterService(protocol.ServiceInfo{ServiceType: args[0], Address: args[1], Port: port}); err != nil {
			return err
		}
		fmt.Printf("registered service %q at %s:%d\n", args[0], args[1], port)
		return nil
	},
}

var deregisterServiceCmd = &cobra.Command{
	Use:   "deregister-service <type>",
	Short: "Deregister a locally-hosted service on a running node",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		addr, _ := cmd.Flags().GetString("client")
		factory := nodeproxy.NewFactory()
		p, err := factory.Connect(addr)
		if err != nil {
			return fmt.Errorf("connect to %s: %w", addr, err)
		}
		defer p.Close()

		if err := p.DeregisterService(args[0]); err != nil {
			return err
		}
		fmt.Printf("deregistered service %q\n", args[0])
		return nil
	},
}

func init() {
	dd := defaultDataDir()

	serveCmd.Flags().String("data", dd, "Data directory for the spatial store")
	serveCmd.Flags().String("node-listen", "0.0.0.0:16980", "TCP listen address for the NodeToNode port")
	serveCmd.Flags().String("client-listen", "127.0.0.1:16981", "TCP listen address for the LocalService/Client port")
	serveCmd.Flags().String("advertise", "127.0.0.1", "Address to advertise to peers in this node's NodeContact")
	serveCmd.Flags().Float64("lat", 0, "This node's latitude in degrees")
	serveCmd.Flags().Float64("lon", 0, "This node's longitude in degrees")
	serveCmd.Flags().String("node-id", "", "This node's ID (generated if empty)")
	serveCmd.Flags().StringSlice("bootstrap", []string{}, "Bootstrap seed addresses (host:port, NodeToNode)")
	serveCmd.Flags().Int("neighbourhood-size", 8, "Target Neighbour count")
	serveCmd.Flags().Int("max-hops", 5, "Maximum remote hops for neighbourhood discovery")

	for _, cmd := range []*cobra.Command{statusCmd, registerServiceCmd, deregisterServiceCmd} {
		cmd.Flags().String("client", "127.0.0.1:16981", "Address of a running node's LocalService/Client port")
	}

	rootCmd.AddCommand(serveCmd, statusCmd, registerServiceCmd, deregisterServiceCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
