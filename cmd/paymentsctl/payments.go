package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/spf13/cobra"
)

func pollCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "poll <payment-id>",
		Short: "Fetch the gateway status of a payment and reconcile it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return call(cmd, opts.client(), request{
				method:  http.MethodGet,
				path:    "/api/payments/" + url.PathEscape(args[0]) + "/status",
				headers: bearer(opts.apiToken),
			})
		},
	}
}

func refundCmd(opts *globalOptions) *cobra.Command {
	return adminPaymentCmd(opts, "refund", "Refund an approved payment")
}

func cancelCmd(opts *globalOptions) *cobra.Command {
	return adminPaymentCmd(opts, "cancel", "Cancel an unpaid payment and void its invoices")
}

func adminPaymentCmd(opts *globalOptions, action, short string) *cobra.Command {
	return &cobra.Command{
		Use:   action + " <payment-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return call(cmd, opts.client(), request{
				method:  http.MethodPost,
				path:    "/admin/payments/" + url.PathEscape(args[0]) + "/" + action,
				headers: bearer(opts.adminToken),
			})
		},
	}
}

func tokensCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tokens",
		Short: "Manage cached gateway sub-account tokens",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "invalidate [sub-account|*]",
		Short: "Drop a cached sub-account token, or all of them",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			account := "*"
			if len(args) == 1 {
				account = args[0]
			}
			body, err := json.Marshal(map[string]string{"account_id": account})
			if err != nil {
				return err
			}
			return call(cmd, opts.client(), request{
				method:      http.MethodPost,
				path:        "/admin/gateway/tokens/invalidate",
				contentType: "application/json",
				headers:     bearer(opts.adminToken),
				body:        body,
			})
		},
	})
	return cmd
}

func call(cmd *cobra.Command, c *apiClient, req request) error {
	_, raw, err := c.do(cmd.Context(), req)
	if err != nil {
		return err
	}
	if err := printJSON(cmd.OutOrStdout(), raw); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	return nil
}
