package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/KIKOU2016/openr/internal/kvstore"
	"github.com/KIKOU2016/openr/internal/logging"
)

var (
	address string
	port    string
	nodeID  string
	seeds   []string
	floodOptimize bool
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start a kvstore node",
	Long: `Start a key-value store node.

Examples:
  # Start a node
  kvstore start --node-id=node-1 --port=50051

  # Start a node with seeds (peers to sync with)
  kvstore start --node-id=node-2 --port=50052 --seeds=127.0.0.1:50051`,
	Run: runStart,
}

func init() {
	rootCmd.AddCommand(startCmd)

	startCmd.Flags().StringVarP(&address, "address", "a", kvstore.DefaultAddress, "Address to bind the server to")
	startCmd.Flags().StringVarP(&port, "port", "p", kvstore.DefaultPort, "Port to bind the server to")
	startCmd.Flags().StringVarP(&nodeID, "node-id", "n", kvstore.DefaultNodeID, "Unique node identifier")
	startCmd.Flags().StringSliceVarP(&seeds, "seeds", "s", []string{}, "Seed peer addresses to sync with (comma-separated)")
	startCmd.Flags().BoolVar(&floodOptimize, "flood-optimize", false, "Enable the spanning-tree flood optimizer")
}

func runStart(cmd *cobra.Command, args []string) {
	logging.Init(true)
	log := logging.For(nodeID)

	cfg := kvstore.DefaultConfig(kvstore.NodeID(nodeID))
	cfg.Address = address
	cfg.Port = port
	cfg.Seeds = seeds
	cfg.EnableFloodOptimization = floodOptimize
	cfg.UseFloodOptimization = floodOptimize

	n, err := kvstore.New(cfg, prometheus.NewRegistry())
	if err != nil {
		log.Fatalf("failed to create node: %v", err)
	}
	if err := n.Start(); err != nil {
		log.Fatalf("failed to start node: %v", err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	log.Info("shutting down...")
	if err := n.Stop(); err != nil {
		log.Errorf("error during shutdown: %v", err)
	}
}
