package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	apiclient "github.com/lukabudik/todofordevs-sub000/pkg/api/client"
)

var errNotLoggedIn = errors.New("not logged in; run `tfd login`")

func newWhoamiCommand(rt *runtimeState) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the account the stored token belongs to",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(rt.configPath)
			if err != nil {
				return err
			}
			if !cfg.loggedIn(rt.now()) {
				return errNotLoggedIn
			}
			client, err := rt.client(cfg)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), requestTimeout)
			defer cancel()
			user, err := client.Me(ctx, cfg.Token)
			if err != nil {
				var apiErr apiclient.APIError
				if errors.As(err, &apiErr) && apiErr.Status == http.StatusUnauthorized {
					return errNotLoggedIn
				}
				return err
			}
			_, _ = fmt.Fprintf(rt.out, "%s\n", displayUser(user))
			return nil
		},
	}
}

func newLogoutCommand(rt *runtimeState) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Remove the stored token",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(rt.configPath)
			if err != nil {
				return err
			}
			cfg.Token = ""
			cfg.ExpiresAt = time.Time{}
			cfg.User = apiclient.User{}
			if err := saveConfig(rt.configPath, cfg); err != nil {
				return err
			}
			_, _ = fmt.Fprintln(rt.out, "Logged out")
			return nil
		},
	}
}
