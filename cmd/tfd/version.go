package main

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
)

var buildVersion = "dev"

func newVersionCommand(rt *runtimeState) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show tfd version",
		Run: func(cmd *cobra.Command, _ []string) {
			_, _ = fmt.Fprintf(rt.out, "tfd %s (%s/%s)\n", buildVersion, runtime.GOOS, runtime.GOARCH)
		},
	}
}
