package main

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/cortexmesh/corenet/pkg/frame"
)

func idCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "id", Short: "generate demo node ids"}
	cmd.AddCommand(&cobra.Command{
		Use:   "new",
		Short: "print a fresh random 128-bit node id, suitable for --node flags elsewhere",
		RunE: func(cmd *cobra.Command, args []string) error {
			var id frame.NodeID
			u := uuid.New()
			copy(id[:], u[:])
			fmt.Println(id.String())
			return nil
		},
	})
	return cmd
}
