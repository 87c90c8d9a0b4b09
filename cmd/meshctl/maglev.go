package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cortexmesh/corenet/pkg/multipath"
)

func maglevCmd() *cobra.Command {
	var backendCount, tableSize int

	cmd := &cobra.Command{
		Use:   "build",
		Short: "build a Maglev table over N equally-weighted backends and print slot counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			backends := make([]multipath.Backend, backendCount)
			for i := range backends {
				var id [16]byte
				id[15] = byte(i + 1)
				backends[i] = multipath.Backend{ID: id, Weight: 1}
			}
			table, err := multipath.Build(backends, tableSize)
			if err != nil {
				return err
			}
			counts := table.SlotCounts()
			for i, c := range counts {
				fmt.Printf("backend %d: %d slots\n", i, c)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&backendCount, "backends", 3, "number of backends")
	cmd.Flags().IntVar(&tableSize, "table-size", multipath.DefaultTableSize, "Maglev table size (should be prime)")
	return cmd
}
