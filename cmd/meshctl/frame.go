package main

import (
	"encoding/hex"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cortexmesh/corenet/pkg/frame"
)

func frameCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "frame", Short: "encode/decode L1 frames"}
	cmd.AddCommand(frameEncodeCmd())
	cmd.AddCommand(frameDecodeCmd())
	return cmd
}

func frameEncodeCmd() *cobra.Command {
	var streamID uint32
	var nodeHex string
	var payload string

	cmd := &cobra.Command{
		Use:   "encode",
		Short: "encode a Data frame and print it as hex",
		RunE: func(cmd *cobra.Command, args []string) error {
			var src frame.NodeID
			if nodeHex != "" {
				raw, err := hex.DecodeString(nodeHex)
				if err != nil {
					return fmt.Errorf("meshctl: bad --node hex: %w", err)
				}
				copy(src[:], raw)
			}
			h := frame.Header{
				Type:      frame.FrameTypeData,
				StreamID:  streamID,
				SrcNodeID: src,
			}
			buf := make([]byte, frame.EncodedLen(nil, []byte(payload)))
			n, err := frame.Encode(buf, h, nil, []byte(payload))
			if err != nil {
				return err
			}
			fmt.Println(hex.EncodeToString(buf[:n]))
			return nil
		},
	}
	cmd.Flags().Uint32Var(&streamID, "stream", 1, "stream id")
	cmd.Flags().StringVar(&nodeHex, "node", "", "source node id as hex (16 bytes)")
	cmd.Flags().StringVar(&payload, "payload", "", "payload bytes as a literal string")
	return cmd
}

func frameDecodeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "decode [hex]",
		Short: "decode a frame given as a hex string and print its header",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			buf, err := hex.DecodeString(args[0])
			if err != nil {
				return fmt.Errorf("meshctl: bad hex input: %w", err)
			}
			d, err := frame.Decode(buf)
			if err != nil {
				return err
			}
			fmt.Println(d.Header.String())
			fmt.Printf("payload: %q\n", d.Payload)
			return nil
		},
	}
	return cmd
}
