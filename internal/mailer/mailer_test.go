package mailer

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildMessage(t *testing.T) {
	now := time.Date(2024, 3, 5, 12, 0, 0, 0, time.UTC)
	raw, err := buildMessage(Email{
		FromName: "Vistoria Já",
		From:     "no-reply@vistoria.example.com",
		To:       []string{"ana@example.com"},
		Bcc:      []string{"audit@example.com"},
		Subject:  "Pagamento aprovado",
		TextBody: "Seu pagamento foi confirmado.\nObrigado!",
		Headers:  map[string]string{"X-Payment-ID": "P1", "X-Bad": "a\r\nBcc: x"},
	}, "vistoria.example.com", now)
	require.NoError(t, err)

	assert.Contains(t, raw, "Date: Tue, 05 Mar 2024 12:00:00 +0000\r\n")
	assert.Contains(t, raw, "From: =?utf-8?q?Vistoria_J=C3=A1?= <no-reply@vistoria.example.com>\r\n")
	assert.Contains(t, raw, "To: ana@example.com\r\n")
	assert.NotContains(t, raw, "audit@example.com")
	assert.Contains(t, raw, "X-Payment-ID: P1\r\n")
	assert.NotContains(t, raw, "X-Bad")
	assert.Contains(t, raw, "Content-Transfer-Encoding: quoted-printable")
	assert.True(t, strings.Contains(raw, "Obrigado!"))
}

func TestBuildMessage_Validation(t *testing.T) {
	valid := Email{From: "a@b", To: []string{"c@d"}, Subject: "s", TextBody: "b"}
	_, err := buildMessage(valid, "d", time.Now())
	require.NoError(t, err)

	for _, mutate := range []func(*Email){
		func(e *Email) { e.To = nil },
		func(e *Email) { e.From = "" },
		func(e *Email) { e.Subject = "" },
		func(e *Email) { e.TextBody = "" },
	} {
		e := valid
		mutate(&e)
		_, err := buildMessage(e, "d", time.Now())
		assert.ErrorIs(t, err, ErrInvalidEmail)
	}
}

func TestRecipients(t *testing.T) {
	e := Email{To: []string{"a"}, Bcc: []string{"b"}}
	assert.Equal(t, []string{"a", "b"}, e.Recipients())
}
