package main

import (
	"encoding/hex"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cortexmesh/corenet/pkg/resolve"
	"github.com/cortexmesh/corenet/pkg/sad"
)

func sadCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "sad", Short: "encode/decode/resolve Semantic Address Descriptors"}
	cmd.AddCommand(sadEncodeCmd())
	cmd.AddCommand(sadDecodeCmd())
	cmd.AddCommand(sadResolveCmd())
	return cmd
}

func sadEncodeCmd() *cobra.Command {
	var modelArch uint32
	var contextWindow uint32
	var trustLevel uint8

	cmd := &cobra.Command{
		Use:   "encode",
		Short: "encode a SAD from a handful of common fields and print it as hex",
		RunE: func(cmd *cobra.Command, args []string) error {
			var fields []sad.Field
			if modelArch != 0 {
				fields = append(fields, sad.Uint32Field(sad.FieldModelArch, modelArch))
			}
			if contextWindow != 0 {
				fields = append(fields, sad.Uint32Field(sad.FieldContextWindow, contextWindow))
			}
			if trustLevel != 0 {
				fields = append(fields, sad.Uint8Field(sad.FieldMinTrustLevel, trustLevel))
			}
			buf, err := sad.Encode(sad.SAD{Fields: fields})
			if err != nil {
				return err
			}
			fmt.Println(hex.EncodeToString(buf))
			return nil
		},
	}
	cmd.Flags().Uint32Var(&modelArch, "model-arch", 0, "MODEL_ARCH field value (0 = omit)")
	cmd.Flags().Uint32Var(&contextWindow, "context-window", 0, "CONTEXT_WINDOW field value (0 = omit)")
	cmd.Flags().Uint8Var(&trustLevel, "min-trust", 0, "MIN_TRUST_LEVEL field value (0 = omit)")
	return cmd
}

func sadDecodeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "decode [hex]",
		Short: "decode a SAD given as a hex string and print its fields",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			buf, err := hex.DecodeString(args[0])
			if err != nil {
				return fmt.Errorf("meshctl: bad hex input: %w", err)
			}
			s, err := sad.Decode(buf)
			if err != nil {
				return err
			}
			if s.IsWildcard() {
				fmt.Println("wildcard (matches everything)")
				return nil
			}
			for _, f := range s.Fields {
				fmt.Printf("%s: %x\n", f.Type, f.Value)
			}
			return nil
		},
	}
}

func sadResolveCmd() *cobra.Command {
	var queryHex string
	var candidateHex []string

	cmd := &cobra.Command{
		Use:   "resolve",
		Short: "score a set of candidate SADs against a query SAD, ranked best first",
		RunE: func(cmd *cobra.Command, args []string) error {
			var query sad.SAD
			if queryHex != "" {
				buf, err := hex.DecodeString(queryHex)
				if err != nil {
					return fmt.Errorf("meshctl: bad --query hex: %w", err)
				}
				query, err = sad.Decode(buf)
				if err != nil {
					return err
				}
			}

			candidates := make([]resolve.Candidate, 0, len(candidateHex))
			for i, h := range candidateHex {
				buf, err := hex.DecodeString(h)
				if err != nil {
					return fmt.Errorf("meshctl: bad --candidate hex at index %d: %w", i, err)
				}
				s, err := sad.Decode(buf)
				if err != nil {
					return err
				}
				var id [16]byte
				id[15] = byte(i)
				candidates = append(candidates, resolve.Candidate{SAD: s, NodeID: id})
			}

			ranked := resolve.TopK(query, candidates, resolve.DefaultWeights, len(candidates))
			for _, r := range ranked {
				fmt.Printf("node=%x score=%.4f\n", r.Candidate.NodeID, r.Score)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&queryHex, "query", "", "query SAD as hex (empty = wildcard)")
	cmd.Flags().StringArrayVar(&candidateHex, "candidate", nil, "candidate SAD as hex, may be repeated")
	return cmd
}
