package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/dhatzige/Career-Services-Personal-CRM-v1-sub003/internal/authclient"
	"github.com/dhatzige/Career-Services-Personal-CRM-v1-sub003/internal/authstate"
)

const oidcCallbackTimeout = 5 * time.Minute

func loginCmd(opts *rootOptions) *cobra.Command {
	var (
		username      string
		passwordStdin bool
		stay          bool
	)

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and persist the session",
		Long: `Sign in with your CRM username (or e-mail) and password.

When an OIDC provider is configured, login opens the provider's sign-in
page instead and completes the flow on the configured redirect URL.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rt, err := newRuntime(ctx, opts, nil)
			if err != nil {
				return err
			}
			defer rt.close()

			if err := rt.start(ctx, true); err != nil {
				return err
			}

			var creds authclient.Credentials
			if rt.oidc != nil {
				creds, err = oidcCredentials(ctx, rt.oidc, rt.cfg.OIDC.RedirectURL)
			} else {
				creds, err = passwordCredentials(username, passwordStdin)
			}
			if err != nil {
				return err
			}
			creds.StayLoggedIn = stay

			out := rt.provider.Login(ctx, creds)
			return reportLogin(out, rt.provider.State())
		},
	}

	cmd.Flags().StringVarP(&username, "username", "u", "", "username or e-mail")
	cmd.Flags().BoolVar(&passwordStdin, "password-stdin", false, "read the password from stdin")
	cmd.Flags().BoolVar(&stay, "stay", false, "stay logged in (no idle timeout)")

	return cmd
}

func reportLogin(out authstate.Outcome, st authstate.AuthState) error {
	if !out.Success {
		return errors.New(out.Message)
	}
	success("Logged in as %s", st.User.Name())
	return nil
}

func passwordCredentials(username string, fromStdin bool) (authclient.Credentials, error) {
	in := bufio.NewReader(os.Stdin)

	if username == "" {
		fmt.Print("Username: ")
		line, err := in.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return authclient.Credentials{}, err
		}
		username = strings.TrimSpace(line)
	}

	var password string
	switch {
	case fromStdin:
		line, err := in.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return authclient.Credentials{}, err
		}
		password = strings.TrimRight(line, "\r\n")
	case term.IsTerminal(int(os.Stdin.Fd())):
		fmt.Print("Password: ")
		raw, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Println()
		if err != nil {
			return authclient.Credentials{}, err
		}
		password = string(raw)
	default:
		return authclient.Credentials{}, errors.New("no terminal: use --password-stdin")
	}

	if username == "" || password == "" {
		return authclient.Credentials{}, errors.New(authclient.ReasonInvalidInput.Message())
	}
	return authclient.Credentials{Identity: username, Secret: password}, nil
}

// oidcCredentials runs the browser leg of the authorization-code flow and
// waits for the provider to redirect back with a code.
func oidcCredentials(ctx context.Context, provider *authclient.OIDCAuthenticator, redirectURL string) (authclient.Credentials, error) {
	redirect, err := url.Parse(redirectURL)
	if err != nil || redirect.Host == "" {
		return authclient.Credentials{}, fmt.Errorf("invalid oidc redirect_url %q", redirectURL)
	}

	verifier, challenge, err := authclient.NewPKCE()
	if err != nil {
		return authclient.Credentials{}, err
	}
	state, err := authclient.NewState()
	if err != nil {
		return authclient.Credentials{}, err
	}

	ln, err := net.Listen("tcp", redirect.Host)
	if err != nil {
		return authclient.Credentials{}, fmt.Errorf("cannot listen for the oidc callback: %w", err)
	}

	codes := make(chan string, 1)
	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	app.Get(redirect.Path, func(c *fiber.Ctx) error {
		if c.Query("state") != state {
			return c.Status(fiber.StatusBadRequest).SendString("state mismatch")
		}
		if e := c.Query("error"); e != "" {
			select {
			case codes <- "":
			default:
			}
			return c.Status(fiber.StatusUnauthorized).SendString("sign-in failed: " + e)
		}
		select {
		case codes <- c.Query("code"):
		default:
		}
		return c.SendString("Signed in. You can close this window.")
	})
	go func() { _ = app.Listener(ln) }()
	defer func() { _ = app.Shutdown() }()

	info("Open this URL to sign in:")
	info("%s", provider.AuthCodeURL(state, challenge))

	ctx, cancel := context.WithTimeout(ctx, oidcCallbackTimeout)
	defer cancel()

	select {
	case code := <-codes:
		if code == "" {
			return authclient.Credentials{}, errors.New(authclient.ReasonInvalidCredentials.Message())
		}
		return authclient.Credentials{Code: code, CodeVerifier: verifier}, nil
	case <-ctx.Done():
		return authclient.Credentials{}, errors.New(authclient.ReasonTimeout.Message())
	}
}
