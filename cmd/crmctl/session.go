package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dhatzige/Career-Services-Personal-CRM-v1-sub003/internal/authstate"
	"github.com/dhatzige/Career-Services-Personal-CRM-v1-sub003/internal/guard"
)

func logoutCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out and forget the stored session",
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
			rt.provider.Logout(ctx)
			success("Logged out")
			return nil
		},
	}
}

func statusCmd(opts *rootOptions) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Restore the stored session and report whether it is still valid",
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
			st := rt.provider.State()

			if asJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(st)
			}
			printStatus(st)
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print the auth state as JSON")
	return cmd
}

func printStatus(st authstate.AuthState) {
	if st.IsAuthenticated {
		success("Logged in as %s", st.User.Name())
		if st.User.Email != "" {
			info("E-mail: %s", st.User.Email)
		}
		return
	}
	fmt.Println("Not logged in")
	if st.Notice != "" {
		info("%s", st.Notice)
	}
}

func whoamiCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Ask the backend who the stored session belongs to",
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
			if err := guard.Require(ctx, rt.provider); err != nil {
				return loginRequired(rt.provider.State(), err)
			}

			var raw json.RawMessage
			if err := rt.api.Get(ctx, "/api/v1/auth/me", &raw); err != nil {
				return err
			}
			return printJSON(raw)
		},
	}
}

func loginRequired(st authstate.AuthState, err error) error {
	if st.Notice != "" {
		return fmt.Errorf("%w: %s", err, st.Notice)
	}
	return fmt.Errorf("%w: run crmctl login", err)
}
