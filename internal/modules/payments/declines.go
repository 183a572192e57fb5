package payments

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"github.com/tidwall/gjson"
	"gopkg.in/yaml.v3"

	"github.com/DKMA-Tecnologia-e-Marketing/sistema-inspecao-itl-sub000/internal/gateway/iugu"
	"github.com/DKMA-Tecnologia-e-Marketing/sistema-inspecao-itl-sub000/internal/shared/extract"
)

//go:embed declines.yaml
var defaultDeclinesYAML []byte

// DeclineTable turns charge replies into outcomes. It is configuration data:
// codes and phrasing are extended through an override file.
type DeclineTable struct {
	Generic             string            `yaml:"generic"`
	DeclinedWithoutCode string            `yaml:"declined_without_code"`
	RateLimited         string            `yaml:"rate_limited"`
	Failed              string            `yaml:"failed"`
	RateLimitMarkers    []string          `yaml:"rate_limit_markers"`
	Vocabulary          []string          `yaml:"vocabulary"`
	SuccessStatuses     []string          `yaml:"success_statuses"`
	DeclineStatuses     []string          `yaml:"decline_statuses"`
	ApprovedCodes       []string          `yaml:"approved_codes"`
	Codes               map[string]string `yaml:"codes"`
}

// LoadDeclineTable parses the built-in table and merges overridePath on top
// when given.
func LoadDeclineTable(overridePath string) (*DeclineTable, error) {
	var t DeclineTable
	if err := yaml.Unmarshal(defaultDeclinesYAML, &t); err != nil {
		return nil, fmt.Errorf("payments: built-in decline table: %w", err)
	}
	if overridePath == "" {
		return &t, nil
	}
	b, err := os.ReadFile(overridePath)
	if err != nil {
		return nil, fmt.Errorf("payments: read decline codes %s: %w", overridePath, err)
	}
	var extra DeclineTable
	if err := yaml.Unmarshal(b, &extra); err != nil {
		return nil, fmt.Errorf("payments: parse decline codes %s: %w", overridePath, err)
	}
	t.merge(extra)
	return &t, nil
}

// MustDeclineTable returns the built-in table.
func MustDeclineTable() *DeclineTable {
	t, err := LoadDeclineTable("")
	if err != nil {
		panic(err)
	}
	return t
}

func (t *DeclineTable) merge(o DeclineTable) {
	for _, s := range []struct{ dst, src *string }{
		{&t.Generic, &o.Generic},
		{&t.DeclinedWithoutCode, &o.DeclinedWithoutCode},
		{&t.RateLimited, &o.RateLimited},
		{&t.Failed, &o.Failed},
	} {
		if *s.src != "" {
			*s.dst = *s.src
		}
	}
	t.RateLimitMarkers = append(t.RateLimitMarkers, o.RateLimitMarkers...)
	t.Vocabulary = append(t.Vocabulary, o.Vocabulary...)
	t.SuccessStatuses = append(t.SuccessStatuses, o.SuccessStatuses...)
	t.DeclineStatuses = append(t.DeclineStatuses, o.DeclineStatuses...)
	t.ApprovedCodes = append(t.ApprovedCodes, o.ApprovedCodes...)
	if t.Codes == nil {
		t.Codes = map[string]string{}
	}
	for k, v := range o.Codes {
		t.Codes[strings.ToUpper(k)] = v
	}
}

// Message is the payer-facing text for a decline code. Unknown codes get
// the generic text with the code in it.
func (t *DeclineTable) Message(code string) string {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return t.DeclinedWithoutCode
	}
	if msg, ok := t.Codes[code]; ok && msg != "" {
		return msg
	}
	return fmt.Sprintf(t.Generic, code)
}

var (
	declineCodePaths = extract.StringAt("LR", "lr", "decline_code", "response_code", "reason_code")
	messagePaths     = extract.StringAt("message", "info_message", "error", "errors.message")
)

// Classify reads a charge reply. fallback is used as the message when the
// reply carries none (transport failures, empty bodies).
func (t *DeclineTable) Classify(doc gjson.Result, fallback string) ChargeOutcome {
	status, _ := extract.String(doc, "status")
	status = strings.ToLower(status)
	invStatus, _ := extract.String(doc, "invoice.status")
	invStatus = strings.ToLower(invStatus)

	success, _ := extract.Bool(doc, "success")
	if success || t.isSuccessStatus(status) || t.isSuccessStatus(invStatus) {
		return ChargeOutcome{Kind: OutcomeSuccess, Success: true, GatewayStatus: firstNonEmpty(status, invStatus)}
	}

	code, _ := declineCodePaths(doc)
	if t.isApprovedCode(code) {
		code = ""
	}
	msg, _ := messagePaths(doc)
	if msg == "" {
		if _, ok := extract.Path(doc, "errors"); ok {
			msg = iugu.ErrorMessage(doc, 0)
		}
	}
	lower := strings.ToLower(msg)

	if containsAny(lower, t.RateLimitMarkers) {
		return ChargeOutcome{Kind: OutcomeRateLimited, Message: t.RateLimited, Code: code, GatewayStatus: status}
	}

	if code != "" {
		return ChargeOutcome{Kind: OutcomeDeclined, Message: t.Message(code), Code: strings.ToUpper(code), GatewayStatus: status}
	}
	if t.isDeclineStatus(status) || containsAny(lower, t.Vocabulary) {
		text := msg
		if text == "" {
			text = t.DeclinedWithoutCode
		}
		return ChargeOutcome{Kind: OutcomeDeclined, Message: text, GatewayStatus: status}
	}

	text := firstNonEmpty(msg, fallback, t.Failed)
	return ChargeOutcome{Kind: OutcomeFailed, Message: text, GatewayStatus: status}
}

func (t *DeclineTable) isSuccessStatus(s string) bool { return s != "" && containsFold(t.SuccessStatuses, s) }
func (t *DeclineTable) isDeclineStatus(s string) bool { return s != "" && containsFold(t.DeclineStatuses, s) }
func (t *DeclineTable) isApprovedCode(code string) bool { return code != "" && containsFold(t.ApprovedCodes, code) }

func containsAny(s string, needles []string) bool {
	if s == "" {
		return false
	}
	for _, n := range needles {
		if n != "" && strings.Contains(s, strings.ToLower(n)) {
			return true
		}
	}
	return false
}

func containsFold(list []string, v string) bool {
	for _, s := range list {
		if strings.EqualFold(s, v) {
			return true
		}
	}
	return false
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
