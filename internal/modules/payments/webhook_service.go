package payments

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"
	"gorm.io/datatypes"

	"github.com/DKMA-Tecnologia-e-Marketing/sistema-inspecao-itl-sub000/internal/shared/extract"
)

var ErrMalformedWebhook = errors.New("webhook body not understood")

// WebhookEvent is a delivery reduced to what reconciliation needs.
type WebhookEvent struct {
	Provider   string
	EventType  string
	ExternalID string
	Status     string
	PaidAt     *time.Time
	Doc        gjson.Result
}

// Candidate locations of the invoice/payment object across gateways and
// event types, most specific first.
var webhookObjectPaths = []extract.Strategy[gjson.Result]{
	extract.ObjectAt("data.object", "id"),
	extract.ObjectAt("data.payment", "id"),
	extract.ObjectAt("data", "id"),
	extract.ObjectAt("invoice", "id"),
	extract.ObjectAt("payment", "id"),
	extract.ObjectAt("", "id"),
}

// ParseIuguWebhook accepts JSON and form-encoded deliveries
// (event=...&data[id]=...&data[status]=...).
func ParseIuguWebhook(contentType string, body []byte) (WebhookEvent, error) {
	doc, err := decodeWebhook(contentType, body)
	if err != nil {
		return WebhookEvent{}, err
	}
	ev := parseWebhookDoc(ProviderIugu, doc)
	if ev.ExternalID == "" {
		if id, ok := extract.StringAt("data.invoice_id", "invoice_id")(doc); ok {
			ev.ExternalID = id
		}
	}
	return ev, nil
}

func ParseAsaasWebhook(body []byte) (WebhookEvent, error) {
	doc, err := decodeWebhook("application/json", body)
	if err != nil {
		return WebhookEvent{}, err
	}
	return parseWebhookDoc(ProviderAsaas, doc), nil
}

func parseWebhookDoc(provider string, doc gjson.Result) WebhookEvent {
	ev := WebhookEvent{Provider: provider, Doc: doc}
	ev.EventType, _ = extract.StringAt("event", "type")(doc)

	if obj, ok := extract.First(doc, webhookObjectPaths...); ok {
		ev.ExternalID, _ = extract.String(obj, "id")
		ev.Status, _ = extract.String(obj, "status")
		if t, ok := extract.First(obj,
			extract.TimeAt("paid_at"), extract.TimeAt("paymentDate"),
			extract.TimeAt("clientPaymentDate"), extract.TimeAt("confirmedDate"),
		); ok {
			ev.PaidAt = &t
		}
	}
	if ev.Status == "" {
		ev.Status = statusFromEvent(ev.EventType)
	}
	return ev
}

// statusFromEvent derives a status from names like PAYMENT_RECEIVED or
// invoice.paid.
func statusFromEvent(event string) string {
	switch {
	case strings.HasPrefix(event, "PAYMENT_"):
		return strings.TrimPrefix(event, "PAYMENT_")
	case strings.HasPrefix(event, "invoice."):
		s := strings.TrimPrefix(event, "invoice.")
		if s == "status_changed" || s == "created" {
			return ""
		}
		return s
	}
	return ""
}

func decodeWebhook(contentType string, body []byte) (gjson.Result, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return gjson.Result{}, fmt.Errorf("%w: empty body", ErrMalformedWebhook)
	}
	mt, _, _ := mime.ParseMediaType(contentType)
	if mt == "application/x-www-form-urlencoded" || (trimmed[0] != '{' && trimmed[0] != '[') {
		vals, err := url.ParseQuery(string(trimmed))
		if err != nil || len(vals) == 0 {
			return gjson.Result{}, fmt.Errorf("%w: not json or form", ErrMalformedWebhook)
		}
		return extract.Of(formDoc(vals)), nil
	}
	doc, err := extract.Decode(trimmed)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("%w: %v", ErrMalformedWebhook, err)
	}
	if !doc.IsObject() {
		return gjson.Result{}, fmt.Errorf("%w: not an object", ErrMalformedWebhook)
	}
	return doc, nil
}

// formDoc nests bracketed keys: data[id]=X becomes {"data":{"id":"X"}}.
func formDoc(vals url.Values) map[string]any {
	root := map[string]any{}
	for key, vs := range vals {
		if len(vs) == 0 {
			continue
		}
		parts := strings.Split(strings.ReplaceAll(key, "]", ""), "[")
		cur := root
		for i, p := range parts {
			if i == len(parts)-1 {
				cur[p] = vs[0]
				break
			}
			next, ok := cur[p].(map[string]any)
			if !ok {
				next = map[string]any{}
				cur[p] = next
			}
			cur = next
		}
	}
	return root
}

type webhookStore interface {
	FindByInvoice(ctx context.Context, provider, invoiceID string) ([]Payment, error)
	RecordEvent(ctx context.Context, ev *ProviderEvent) error
	FinishEvent(ctx context.Context, id string, processErr error) error
}

type applier interface {
	Apply(ctx context.Context, p *Payment, to Status, paidAt *time.Time) (Transition, error)
}

type WebhookResult struct {
	Matched int
	Changed int
}

type WebhookService struct {
	store      webhookStore
	reconciler applier
	tables     *StatusTables
	logger     *slog.Logger
}

func NewWebhookService(store webhookStore, reconciler applier, tables *StatusTables) *WebhookService {
	if tables == nil {
		tables = DefaultStatusTables()
	}
	return &WebhookService{store: store, reconciler: reconciler, tables: tables, logger: slog.Default()}
}

func (s *WebhookService) SetLogger(logger *slog.Logger) {
	s.logger = logger
}

// Handle reconciles every payment the delivery refers to. Unknown invoices
// are not an error.
func (s *WebhookService) Handle(ctx context.Context, ev WebhookEvent) (WebhookResult, error) {
	eventID := s.record(ctx, ev)

	res, err := s.apply(ctx, ev)

	if eventID != "" {
		if ferr := s.store.FinishEvent(ctx, eventID, err); ferr != nil {
			s.logger.WarnContext(ctx, "provider event update failed", "provider", ev.Provider, "err", ferr)
		}
	}
	return res, err
}

func (s *WebhookService) apply(ctx context.Context, ev WebhookEvent) (WebhookResult, error) {
	var res WebhookResult
	if ev.ExternalID == "" {
		s.logger.WarnContext(ctx, "webhook without invoice id", "provider", ev.Provider, "event", ev.EventType)
		return res, nil
	}
	if ev.Status == "" {
		s.logger.InfoContext(ctx, "webhook without status, nothing to apply",
			"provider", ev.Provider, "event", ev.EventType, "invoice_id", ev.ExternalID)
		return res, nil
	}

	payments, err := s.store.FindByInvoice(ctx, ev.Provider, ev.ExternalID)
	if err != nil {
		return res, fmt.Errorf("payments: lookup invoice %s: %w", ev.ExternalID, err)
	}
	if len(payments) == 0 {
		s.logger.InfoContext(ctx, "webhook for unknown invoice",
			"provider", ev.Provider, "event", ev.EventType, "invoice_id", ev.ExternalID)
		return res, nil
	}

	to := s.tables.Map(ev.Provider, ev.Status)
	var errs []error
	for i := range payments {
		p := &payments[i]
		res.Matched++
		tr, err := s.reconciler.Apply(ctx, p, to, ev.PaidAt)
		if err != nil {
			errs = append(errs, err)
		}
		if tr.Changed {
			res.Changed++
		}
	}
	s.logger.InfoContext(ctx, "webhook applied",
		"provider", ev.Provider, "event", ev.EventType, "invoice_id", ev.ExternalID,
		"upstream_status", ev.Status, "status", string(to), "matched", res.Matched, "changed", res.Changed)
	return res, errors.Join(errs...)
}

// record stores the delivery; failures are logged and ignored.
func (s *WebhookService) record(ctx context.Context, ev WebhookEvent) string {
	payload := []byte("{}")
	if ev.Doc.Exists() {
		payload = []byte(ev.Doc.Raw)
	}
	eventType := ev.EventType
	if eventType == "" {
		eventType = "unknown"
	}
	pe := ProviderEvent{
		ID:          uuid.NewString(),
		Provider:    ev.Provider,
		EventType:   truncate(eventType, 64),
		ExternalID:  truncate(ev.ExternalID, 128),
		PayloadJSON: datatypes.JSON(payload),
		ReceivedAt:  time.Now(),
	}
	if err := s.store.RecordEvent(ctx, &pe); err != nil {
		s.logger.WarnContext(ctx, "failed to persist provider event", "provider", ev.Provider, "err", err)
		return ""
	}
	return pe.ID
}
