package main

import (
	"fmt"

	"github.com/reglet-dev/lantern/internal/version"
	"github.com/spf13/cobra"
)

func newVersionCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version number of lantern",
		Args:  cobra.NoArgs,
		Run: func(_ *cobra.Command, _ []string) {
			info := version.Get()
			_, _ = fmt.Fprintf(a.stdout, "lantern version %s\n", info.Full())
		},
	}
}
