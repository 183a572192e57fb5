package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/spf13/cobra"
)

type webhookOptions struct {
	invoiceID string
	status    string
	event     string
	accountID string
	paidDate  string
	secret    string
	dryRun    bool
}

func webhookCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "webhook",
		Short: "Send a simulated gateway webhook delivery",
	}
	cmd.AddCommand(iuguWebhookCmd(opts), asaasWebhookCmd(opts))
	return cmd
}

func iuguWebhookCmd(opts *globalOptions) *cobra.Command {
	w := &webhookOptions{}
	cmd := &cobra.Command{
		Use:   "iugu",
		Short: "Send a form-encoded Iugu invoice trigger",
		Example: `  paymentsctl webhook iugu --invoice INV123 --status paid
  paymentsctl webhook iugu --invoice INV123 --status canceled --dry-run`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			body := iuguWebhookBody(w.event, w.invoiceID, w.status, w.accountID)
			return sendWebhook(cmd, opts, w, "/webhooks/iugu", "application/x-www-form-urlencoded", "Authorization", body)
		},
	}
	addWebhookFlags(cmd, w, "invoice.status_changed", "paid", "IUGU_WEBHOOK_TOKEN")
	cmd.Flags().StringVar(&w.accountID, "account", "", "sub-account id (data[account_id])")
	return cmd
}

func asaasWebhookCmd(opts *globalOptions) *cobra.Command {
	w := &webhookOptions{}
	cmd := &cobra.Command{
		Use:     "asaas",
		Short:   "Send an Asaas payment event",
		Example: `  paymentsctl webhook asaas --invoice pay_123 --status RECEIVED --paid-date 2024-03-05`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			body, err := asaasWebhookBody(w.event, w.invoiceID, w.status, w.paidDate)
			if err != nil {
				return err
			}
			return sendWebhook(cmd, opts, w, "/webhooks/asaas", "application/json", "asaas-access-token", body)
		},
	}
	addWebhookFlags(cmd, w, "", "RECEIVED", "ASAAS_WEBHOOK_TOKEN")
	cmd.Flags().StringVar(&w.paidDate, "paid-date", "", "paymentDate (YYYY-MM-DD)")
	return cmd
}

func addWebhookFlags(cmd *cobra.Command, w *webhookOptions, event, status, secretEnv string) {
	cmd.Flags().StringVar(&w.invoiceID, "invoice", "", "gateway invoice/payment id")
	cmd.Flags().StringVar(&w.status, "status", status, "upstream status")
	cmd.Flags().StringVar(&w.event, "event", event, "event name")
	cmd.Flags().StringVar(&w.secret, "secret", envOr(secretEnv, ""), "webhook shared secret")
	cmd.Flags().BoolVar(&w.dryRun, "dry-run", false, "print the delivery without sending it")
	_ = cmd.MarkFlagRequired("invoice")
}

// iuguWebhookBody mirrors Iugu triggers: event=...&data[id]=...&data[status]=...
func iuguWebhookBody(event, invoiceID, status, accountID string) []byte {
	v := url.Values{}
	v.Set("event", event)
	v.Set("data[id]", invoiceID)
	v.Set("data[status]", status)
	if accountID != "" {
		v.Set("data[account_id]", accountID)
	}
	return []byte(v.Encode())
}

func asaasWebhookBody(event, paymentID, status, paidDate string) ([]byte, error) {
	status = strings.ToUpper(status)
	if event == "" {
		event = "PAYMENT_" + status
	}
	payment := map[string]any{"id": paymentID, "status": status}
	if paidDate != "" {
		payment["paymentDate"] = paidDate
	}
	return json.Marshal(map[string]any{"event": event, "payment": payment})
}

func sendWebhook(cmd *cobra.Command, opts *globalOptions, w *webhookOptions, path, contentType, secretHeader string, body []byte) error {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "POST %s%s\nBody: %s\n", opts.baseURL, path, body)
	if w.dryRun {
		fmt.Fprintln(out, "[dry run] not sent")
		return nil
	}

	status, raw, err := opts.client().do(cmd.Context(), request{
		method:      http.MethodPost,
		path:        path,
		contentType: contentType,
		headers:     map[string]string{secretHeader: w.secret},
		body:        body,
	})
	fmt.Fprintf(out, "Status: %d\n", status)
	if err != nil {
		return err
	}
	return printJSON(out, raw)
}
