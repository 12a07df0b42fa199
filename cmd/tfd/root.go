package main

import (
	"context"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	apiclient "github.com/lukabudik/todofordevs-sub000/pkg/api/client"
)

type options struct {
	configPath string
	out        io.Writer
	sleep      func(context.Context, time.Duration) error
	now        func() time.Time
}

type runtimeState struct {
	options
	apiOverride string
}

func defaultOptions() options {
	return options{
		configPath: defaultConfigPath(),
		out:        os.Stdout,
		sleep:      sleepContext,
		now:        time.Now,
	}
}

func newRootCommand(opts options) *cobra.Command {
	rt := &runtimeState{options: opts}
	if rt.sleep == nil {
		rt.sleep = sleepContext
	}
	if rt.now == nil {
		rt.now = time.Now
	}

	root := &cobra.Command{
		Use:           "tfd",
		Short:         "todofordevs command line",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			if rt.out == nil {
				rt.out = cmd.OutOrStdout()
			}
			if rt.configPath == "" {
				rt.configPath = defaultConfigPath()
			}
			if rt.apiOverride == "" {
				rt.apiOverride = os.Getenv("TFD_API_URL")
			}
		},
	}
	root.PersistentFlags().StringVar(&rt.configPath, "config", rt.configPath, "Path to config file")
	root.PersistentFlags().StringVar(&rt.apiOverride, "api", "", "API base URL (default "+apiclient.DefaultBaseURL+")")

	root.AddCommand(
		newLoginCommand(rt),
		newWhoamiCommand(rt),
		newLogoutCommand(rt),
		newVersionCommand(rt),
	)
	return root
}

// client builds an API client from the --api flag, TFD_API_URL or the stored config.
func (rt *runtimeState) client(cfg cliConfig) (*apiclient.Client, error) {
	base := strings.TrimSpace(rt.apiOverride)
	if base == "" {
		base = cfg.APIBaseURL
	}
	return apiclient.New(base)
}

func (rt *runtimeState) interactive() bool {
	f, ok := rt.out.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
