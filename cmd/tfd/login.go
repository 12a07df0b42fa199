package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	apiclient "github.com/lukabudik/todofordevs-sub000/pkg/api/client"
)

const (
	requestTimeout  = 10 * time.Second
	defaultInterval = 5 * time.Second
	defaultExpiry   = 15 * time.Minute
)

var (
	errLoginTimedOut = errors.New("login timed out before the code was approved; run `tfd login` again")
	errCodeExpired   = errors.New("the login code expired; run `tfd login` again")
	errCodeRejected  = errors.New("the login code is no longer valid; run `tfd login` again")
)

func newLoginCommand(rt *runtimeState) *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "Login through the browser with a one-time code",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(rt.configPath)
			if err != nil {
				return err
			}
			client, err := rt.client(cfg)
			if err != nil {
				return err
			}
			var existing string
			if cfg.loggedIn(rt.now()) {
				existing = cfg.Token
			}
			tok, err := deviceLogin(cmd.Context(), client, existing, rt)
			if err != nil {
				return err
			}
			cfg.APIBaseURL = client.BaseURL()
			cfg.Token = tok.Token
			cfg.User = tok.User
			cfg.ExpiresAt = time.Time{}
			if tok.ExpiresIn > 0 {
				cfg.ExpiresAt = rt.now().Add(time.Duration(tok.ExpiresIn) * time.Second).UTC()
			}
			if err := saveConfig(rt.configPath, cfg); err != nil {
				return fmt.Errorf("store credentials: %w", err)
			}
			_, _ = fmt.Fprintf(rt.out, "Logged in as %s\n", displayUser(tok.User))
			return nil
		},
	}
}

// deviceLogin runs the device authorization flow and polls until the code is
// approved, rejected or the advertised expiry passes.
func deviceLogin(ctx context.Context, client *apiclient.Client, existingToken string, rt *runtimeState) (apiclient.DeviceToken, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	startCtx, cancel := context.WithTimeout(ctx, requestTimeout)
	start, err := client.StartDeviceAuthorization(startCtx, existingToken)
	cancel()
	if err != nil {
		return apiclient.DeviceToken{}, fmt.Errorf("start login: %w", err)
	}
	expires := time.Duration(start.ExpiresIn) * time.Second
	if expires <= 0 {
		expires = defaultExpiry
	}
	interval := time.Duration(start.Interval) * time.Second
	if interval <= 0 {
		interval = defaultInterval
	}
	deadline := rt.now().Add(expires)

	printInstructions(rt.out, start)
	interactive := rt.interactive()

	for {
		pollCtx, cancel := context.WithTimeout(ctx, requestTimeout)
		tok, err := client.PollDeviceAuthorization(pollCtx, start.DeviceCode)
		cancel()
		switch {
		case err == nil:
			if interactive {
				_, _ = fmt.Fprintln(rt.out)
			}
			return tok, nil
		case errors.Is(err, apiclient.ErrAuthorizationPending):
		case errors.Is(err, apiclient.ErrExpiredDeviceCode):
			return apiclient.DeviceToken{}, errCodeExpired
		case errors.Is(err, apiclient.ErrInvalidDeviceCode):
			return apiclient.DeviceToken{}, errCodeRejected
		case errors.Is(err, apiclient.ErrUserNotFound):
			return apiclient.DeviceToken{}, errors.New("the approving account no longer exists")
		default:
			return apiclient.DeviceToken{}, fmt.Errorf("poll login status: %w", err)
		}

		if !rt.now().Add(interval).Before(deadline) {
			return apiclient.DeviceToken{}, errLoginTimedOut
		}
		if interactive {
			_, _ = fmt.Fprint(rt.out, ".")
		}
		if err := rt.sleep(ctx, interval); err != nil {
			return apiclient.DeviceToken{}, err
		}
	}
}

func printInstructions(out io.Writer, start apiclient.DeviceAuthorization) {
	_, _ = fmt.Fprintf(out, "Open %s and enter the code %s\n", start.VerificationURL, formatUserCode(start.UserCode))
	if start.VerificationURLComplete != "" {
		_, _ = fmt.Fprintf(out, "Or visit %s\n", start.VerificationURLComplete)
	}
	_, _ = fmt.Fprintln(out, "Waiting for approval...")
}

// formatUserCode splits a six character code as ABC-234 for readability.
func formatUserCode(code string) string {
	if len(code) != 6 {
		return code
	}
	return code[:3] + "-" + code[3:]
}

func displayUser(u apiclient.User) string {
	switch {
	case u.Name != "" && u.Email != "":
		return fmt.Sprintf("%s <%s>", u.Name, u.Email)
	case u.Email != "":
		return u.Email
	default:
		return u.ID
	}
}
