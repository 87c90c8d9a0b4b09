package main

import (
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func main() {
	root := &cobra.Command{
		Use:   "meshctl",
		Short: "diagnostic CLI for the corenet protocol stack",
	}
	root.AddCommand(frameCmd())
	root.AddCommand(sadCmd())
	root.AddCommand(gossipCmd())
	root.AddCommand(maglevCmd())
	root.AddCommand(loopbackCmd())
	root.AddCommand(idCmd())

	if err := root.Execute(); err != nil {
		logrus.WithError(err).Error("meshctl: command failed")
		os.Exit(1)
	}
}
