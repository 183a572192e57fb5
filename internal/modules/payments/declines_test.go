package payments

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DKMA-Tecnologia-e-Marketing/sistema-inspecao-itl-sub000/internal/shared/extract"
)

func classify(t *testing.T, table *DeclineTable, body string) ChargeOutcome {
	t.Helper()
	doc, err := extract.Decode([]byte(body))
	require.NoError(t, err)
	return table.Classify(doc, "")
}

func TestClassify(t *testing.T) {
	table := MustDeclineTable()
	tests := []struct {
		name     string
		body     string
		wantKind OutcomeKind
		wantCode string
		wantMsg  string
	}{
		{name: "success flag", body: `{"success":true,"message":"Autorizado"}`, wantKind: OutcomeSuccess},
		{name: "captured status", body: `{"status":"captured"}`, wantKind: OutcomeSuccess},
		{name: "nested invoice paid", body: `{"invoice":{"id":"I","status":"paid"}}`, wantKind: OutcomeSuccess},
		{name: "LR AF02", body: `{"LR":"AF02"}`, wantKind: OutcomeDeclined, wantCode: "AF02",
			wantMsg: "Cartão não autorizado. Entre em contato com o banco emissor."},
		{name: "unknown code", body: `{"success":false,"LR":"Z9","message":"Transação negada"}`, wantKind: OutcomeDeclined,
			wantCode: "Z9", wantMsg: "Pagamento recusado pelo banco emissor (código: Z9)."},
		{name: "failed status", body: `{"success":false,"status":"failed","message":"Falha"}`, wantKind: OutcomeDeclined, wantMsg: "Falha"},
		{name: "vocabulary", body: `{"success":false,"message":"Transaction DENIED by issuer"}`, wantKind: OutcomeDeclined,
			wantMsg: "Transaction DENIED by issuer"},
		{name: "rate limited", body: `{"success":false,"message":"Monthly attempts exceeded for this card"}`, wantKind: OutcomeRateLimited},
		{name: "approved LR is not a decline", body: `{"LR":"00"}`, wantKind: OutcomeFailed},
		{name: "ambiguous", body: `{"foo":"bar"}`, wantKind: OutcomeFailed},
		{name: "errors object", body: `{"errors":{"token":["inválido"]}}`, wantKind: OutcomeFailed, wantMsg: "token: inválido"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := classify(t, table, tt.body)
			assert.Equal(t, tt.wantKind, out.Kind)
			assert.Equal(t, tt.wantKind == OutcomeSuccess, out.Success)
			assert.Equal(t, tt.wantCode, out.Code)
			if tt.wantMsg != "" {
				assert.Equal(t, tt.wantMsg, out.Message)
			}
			if !out.Success {
				assert.NotEmpty(t, out.Message)
			}
		})
	}
}

func TestClassify_RateLimitedMessageIsDistinct(t *testing.T) {
	table := MustDeclineTable()
	out := classify(t, table, `{"message":"monthly attempts exceeded"}`)
	assert.Equal(t, table.RateLimited, out.Message)
	assert.NotEqual(t, table.DeclinedWithoutCode, out.Message)
}

func TestDeclineMessages_EveryKnownCode(t *testing.T) {
	table := MustDeclineTable()
	require.NotEmpty(t, table.Codes)
	seen := map[string]string{}
	for code, want := range table.Codes {
		out := classify(t, table, `{"success":false,"LR":"`+code+`"}`)
		assert.Equal(t, OutcomeDeclined, out.Kind, code)
		assert.Equal(t, want, out.Message, code)
		assert.NotEmpty(t, out.Message, code)
		seen[code] = out.Message
	}

	generic := table.Message("QQ7")
	assert.Contains(t, generic, "QQ7")
	for code, msg := range seen {
		assert.NotEqual(t, generic, msg, code)
	}
}

func TestLoadDeclineTable_Override(t *testing.T) {
	path := filepath.Join(t.TempDir(), "declines.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
codes:
  af02: "Mensagem customizada"
  X1: "Novo código"
vocabulary: ["rejeitad"]
`), 0o644))

	table, err := LoadDeclineTable(path)
	require.NoError(t, err)
	assert.Equal(t, "Mensagem customizada", table.Message("AF02"))
	assert.Equal(t, "Novo código", table.Message("x1"))
	assert.Equal(t, MustDeclineTable().Codes["51"], table.Message("51"))

	out := classify(t, table, `{"message":"Pagamento rejeitado"}`)
	assert.Equal(t, OutcomeDeclined, out.Kind)

	_, err = LoadDeclineTable(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestDeclineTable_GenericKeepsCode(t *testing.T) {
	msg := MustDeclineTable().Message("ab12")
	assert.True(t, strings.Contains(msg, "AB12"), msg)
}
