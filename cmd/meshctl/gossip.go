package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cortexmesh/corenet/pkg/frame"
	"github.com/cortexmesh/corenet/pkg/gossip"
)

// cliNetwork is a minimal in-process gossip.Transport fanning SendTo calls
// out to every registered Node's Dispatch, for the loopback "gossip
// simulate" demo. It never touches the network.
type cliNetwork struct {
	nodes map[frame.NodeID]*gossip.Node
}

func newCLINetwork() *cliNetwork {
	return &cliNetwork{nodes: make(map[frame.NodeID]*gossip.Node)}
}

func (n *cliNetwork) register(node *gossip.Node, self frame.NodeID) {
	n.nodes[self] = node
}

func (n *cliNetwork) SendTo(peer frame.NodeID, msg []byte) error {
	node, ok := n.nodes[peer]
	if !ok {
		return fmt.Errorf("meshctl: no such peer %s in simulation", peer)
	}
	return node.Dispatch(msg)
}

func gossipCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "gossip", Short: "gossip protocol tools"}
	cmd.AddCommand(gossipSimulateCmd())
	return cmd
}

func gossipSimulateCmd() *cobra.Command {
	var n int

	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "build N HyParView nodes, join them all through node 0, and print their views",
		RunE: func(cmd *cobra.Command, args []string) error {
			if n < 2 {
				return fmt.Errorf("meshctl: --nodes must be at least 2")
			}
			net := newCLINetwork()
			ids := make([]frame.NodeID, n)
			nodes := make([]*gossip.Node, n)
			for i := range ids {
				ids[i][15] = byte(i + 1)
			}
			for i := range ids {
				node := gossip.New(gossip.Config{Self: ids[i], Transport: net})
				nodes[i] = node
				net.register(node, ids[i])
			}
			for i := 1; i < n; i++ {
				if err := nodes[i].Join(ids[0]); err != nil {
					return fmt.Errorf("meshctl: node %d join failed: %w", i, err)
				}
			}
			for i, node := range nodes {
				fmt.Printf("node %d (%s): active=%d passive=%d\n", i, ids[i], len(node.ActiveView()), len(node.PassiveView()))
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&n, "nodes", 5, "number of simulated nodes")
	return cmd
}
