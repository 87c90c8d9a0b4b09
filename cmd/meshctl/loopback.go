package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cortexmesh/corenet/pkg/frame"
	"github.com/cortexmesh/corenet/pkg/platform"
	"github.com/cortexmesh/corenet/pkg/transport"
)

func loopbackCmd() *cobra.Command {
	var message string

	cmd := &cobra.Command{
		Use:   "echo",
		Short: "open two in-process connections over the Mock platform and echo a message over a reliable-ordered stream",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, b, err := platform.NewMockPair(16, 1500)
			if err != nil {
				return err
			}

			nodeA, nodeB := frame.NodeID{1}, frame.NodeID{2}
			connA := transport.NewConnection(transport.Config{Local: nodeA, Peer: nodeB, Side: transport.SideClient})
			connB := transport.NewConnection(transport.Config{Local: nodeB, Peer: nodeA, Side: transport.SideServer})

			mxA := transport.NewMultiplexer(connA, a, nodeA, nodeB)
			mxB := transport.NewMultiplexer(connB, b, nodeB, nodeA)
			connA.SetSendFunc(transport.BindSend(mxA, 15))
			connB.SetSendFunc(transport.BindSend(mxB, 15))

			if err := connB.Accept(); err != nil {
				return err
			}
			if err := connA.Connect(); err != nil {
				return err
			}

			buf := make([]byte, 1500)
			pump := func() error {
				if _, err := mxA.PumpOutbound(); err != nil {
					return err
				}
				if err := mxB.PumpInbound(buf); err != nil && err != platform.ErrEmpty {
					return err
				}
				if _, err := mxB.PumpOutbound(); err != nil {
					return err
				}
				if err := mxA.PumpInbound(buf); err != nil && err != platform.ErrEmpty {
					return err
				}
				return nil
			}

			if err := pump(); err != nil {
				return fmt.Errorf("meshctl: handshake failed: %w", err)
			}

			stream, err := connA.OpenStream(transport.ModeReliableOrdered, 10)
			if err != nil {
				return err
			}
			if err := pump(); err != nil {
				return fmt.Errorf("meshctl: stream open failed: %w", err)
			}

			if _, err := stream.Send([]byte(message)); err != nil {
				return err
			}
			if err := pump(); err != nil {
				return fmt.Errorf("meshctl: data send failed: %w", err)
			}

			serverStream := connB.FindStream(stream.ID())
			if serverStream == nil {
				return fmt.Errorf("meshctl: server never saw stream %d", stream.ID())
			}
			got, ok := serverStream.Recv()
			if !ok {
				return fmt.Errorf("meshctl: no message delivered on loopback stream")
			}
			fmt.Printf("echoed: %q\n", got)
			return nil
		},
	}
	cmd.Flags().StringVar(&message, "message", "hello corenet", "message to echo over the loopback stream")
	return cmd
}
