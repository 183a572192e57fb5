package main

import (
	"os"
	"time"

	"github.com/spf13/cobra"
)

type globalOptions struct {
	baseURL    string
	apiToken   string
	adminToken string
	timeout    time.Duration
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}
	root := &cobra.Command{
		Use:           "paymentsctl",
		Short:         "Operate the payment gateway service over HTTP",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&opts.baseURL, "url", envOr("PAYMENTS_URL", "http://localhost:8080"), "service base URL")
	root.PersistentFlags().StringVar(&opts.apiToken, "token", os.Getenv("API_TOKEN"), "API bearer token")
	root.PersistentFlags().StringVar(&opts.adminToken, "admin-token", os.Getenv("ADMIN_TOKEN"), "admin bearer token")
	root.PersistentFlags().DurationVar(&opts.timeout, "timeout", 30*time.Second, "request timeout")

	root.AddCommand(webhookCmd(opts))
	root.AddCommand(pollCmd(opts))
	root.AddCommand(refundCmd(opts))
	root.AddCommand(cancelCmd(opts))
	root.AddCommand(tokensCmd(opts))
	root.AddCommand(migrateCmd())

	return root
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
