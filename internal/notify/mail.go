package notify

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/DKMA-Tecnologia-e-Marketing/sistema-inspecao-itl-sub000/internal/mailer"
	"github.com/DKMA-Tecnologia-e-Marketing/sistema-inspecao-itl-sub000/internal/modules/payments"
)

// Mail sends the payer a short notice. Payments without an email are skipped.
type Mail struct {
	sender mailer.Sender
}

func NewMail(sender mailer.Sender) *Mail {
	return &Mail{sender: sender}
}

func (m *Mail) PaymentApproved(ctx context.Context, p payments.Payment) error {
	if p.PayerEmail == "" {
		return nil
	}
	body := fmt.Sprintf("Olá %s,\n\nRecebemos o pagamento de %s referente à sua vistoria.\n", greetingName(p), brl(p.AmountCents))
	return m.send(ctx, p, "Pagamento confirmado", body)
}

func (m *Mail) PaymentDeclined(ctx context.Context, p payments.Payment) error {
	if p.PayerEmail == "" {
		return nil
	}
	body := fmt.Sprintf("Olá %s,\n\nO pagamento de %s referente à sua vistoria não foi concluído. Você pode gerar uma nova cobrança pelo link de agendamento.\n", greetingName(p), brl(p.AmountCents))
	return m.send(ctx, p, "Pagamento não concluído", body)
}

func (m *Mail) send(ctx context.Context, p payments.Payment, subject, body string) error {
	err := m.sender.Send(ctx, mailer.Email{
		To:       []string{p.PayerEmail},
		Subject:  subject,
		TextBody: body,
		Headers:  map[string]string{"X-Payment-ID": p.ID},
	})
	if err != nil {
		return fmt.Errorf("notify: mail %s: %w", p.ID, err)
	}
	return nil
}

func greetingName(p payments.Payment) string {
	if p.PayerName == "" {
		return "cliente"
	}
	return p.PayerName
}

// brl formats cents as "R$ 1.234,56".
func brl(cents int64) string {
	s := decimal.New(cents, -2).StringFixed(2)
	neg := false
	if s[0] == '-' {
		neg, s = true, s[1:]
	}
	intPart, frac := s[:len(s)-3], s[len(s)-2:]
	var out []byte
	for i := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			out = append(out, '.')
		}
		out = append(out, intPart[i])
	}
	res := "R$ " + string(out) + "," + frac
	if neg {
		res = "-" + res
	}
	return res
}
