package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dhatzige/Career-Services-Personal-CRM-v1-sub003/internal/guard"
)

func apiCmd(opts *rootOptions) *cobra.Command {
	var data string

	cmd := &cobra.Command{
		Use:   "api [method] <path>",
		Short: "Call a backend endpoint as the signed-in user",
		Example: `  crmctl api /api/v1/auth/sessions
  crmctl api POST /api/v1/admin/sessions/purge`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			method, path := http.MethodGet, args[0]
			if len(args) == 2 {
				method, path = strings.ToUpper(args[0]), args[1]
			}

			var body any
			if data != "" {
				if !json.Valid([]byte(data)) {
					return fmt.Errorf("--data is not valid JSON")
				}
				body = json.RawMessage(data)
			}

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
			if err := rt.api.Do(ctx, method, path, body, &raw); err != nil {
				return err
			}
			return printJSON(raw)
		},
	}

	cmd.Flags().StringVarP(&data, "data", "d", "", "JSON request body")
	return cmd
}

func printJSON(raw json.RawMessage) error {
	if len(raw) == 0 {
		return nil
	}
	var out bytes.Buffer
	if err := json.Indent(&out, raw, "", "  "); err != nil {
		_, err = os.Stdout.Write(raw)
		return err
	}
	out.WriteByte('\n')
	_, err := out.WriteTo(os.Stdout)
	return err
}
