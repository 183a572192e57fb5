package iugu

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"

	"github.com/DKMA-Tecnologia-e-Marketing/sistema-inspecao-itl-sub000/internal/shared/extract"
)

const (
	MethodPix        = "pix"
	MethodCreditCard = "credit_card"
)

type Item struct {
	Description string `json:"description"`
	Quantity    int    `json:"quantity"`
	PriceCents  int64  `json:"price_cents"`
}

type Payer struct {
	Name     string `json:"name,omitempty"`
	CPFCNPJ  string `json:"cpf_cnpj,omitempty"`
	Email    string `json:"email,omitempty"`
	PhonePre string `json:"phone_prefix,omitempty"`
	Phone    string `json:"phone,omitempty"`
}

// Split sends part of an invoice to another account. Percent goes out as a
// JSON number even though it is held as a decimal.
type Split struct {
	RecipientAccountID string
	Percent            decimal.Decimal
}

func (s Split) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		RecipientAccountID string          `json:"recipient_account_id"`
		Percent            json.RawMessage `json:"percent"`
	}{
		RecipientAccountID: s.RecipientAccountID,
		Percent:            json.RawMessage(s.Percent.String()),
	})
}

type CreateInvoiceRequest struct {
	Email           string   `json:"email"`
	DueDate         string   `json:"due_date"`
	Items           []Item   `json:"items"`
	Payer           Payer    `json:"payer"`
	PayableWith     []string `json:"payable_with"`
	Splits          []Split  `json:"splits,omitempty"`
	NotificationURL string   `json:"notification_url,omitempty"`
	OrderID         string   `json:"order_id,omitempty"`
}

type PixInstrument struct {
	QRCodeText     string `json:"qrcode_text,omitempty"`
	QRCodeImageURL string `json:"qrcode_image_url,omitempty"`
}

func (p PixInstrument) Ready() bool { return p.QRCodeText != "" || p.QRCodeImageURL != "" }

// Invoice is the subset of a gateway invoice the payment core mirrors.
type Invoice struct {
	ID          string
	Status      string
	PayableWith []string
	TotalCents  int64
	PaidAt      *time.Time
	SecureURL   string
	Email       string
	Pix         PixInstrument
	Items       []Item
	Raw         gjson.Result
}

// CardOnly reports whether credit card is the single accepted method.
func (inv Invoice) CardOnly() bool {
	return len(inv.PayableWith) == 1 && inv.PayableWith[0] == MethodCreditCard
}

func (inv Invoice) Accepts(method string) bool {
	for _, m := range inv.PayableWith {
		if m == method {
			return true
		}
	}
	return false
}

var (
	pixTextPaths  = extract.StringAt("pix.qrcode_text", "pix.qr_code_text", "pix.emv", "qrcode_text")
	pixImagePaths = extract.StringAt("pix.qrcode", "pix.qr_code", "pix.qrcode_image_url")
)

// ParseInvoice reads an invoice out of a decoded body. Charge replies wrap
// it in "invoice"; plain fetches return it at the root.
func ParseInvoice(doc gjson.Result) (Invoice, bool) {
	obj, ok := extract.First(doc,
		extract.ObjectAt("", "id", "status"),
		extract.ObjectAt("invoice", "id"),
		extract.ObjectAt("data", "id"),
	)
	if !ok {
		return Invoice{}, false
	}

	inv := Invoice{Raw: obj}
	inv.ID, _ = extract.String(obj, "id")
	status, _ := extract.String(obj, "status")
	inv.Status = strings.ToLower(status)
	inv.SecureURL, _ = extract.String(obj, "secure_url")
	inv.Email, _ = extract.String(obj, "email")

	if v, ok := extract.Path(obj, "payable_with"); ok {
		inv.PayableWith = ParseMethods(strings.Join(extract.Strings(v), ","))
	}
	if s, ok := extract.First(obj, extract.StringAt("total_cents", "total_paid_cents")); ok {
		inv.TotalCents = parseCents(s)
	}
	if t, ok := extract.First(obj, extract.TimeAt("paid_at"), extract.TimeAt("occurrence_date")); ok {
		inv.PaidAt = &t
	}

	inv.Pix.QRCodeText, _ = pixTextPaths(obj)
	inv.Pix.QRCodeImageURL, _ = pixImagePaths(obj)

	if raw, ok := extract.Path(obj, "items"); ok && raw.IsArray() {
		for _, it := range raw.Array() {
			desc, _ := extract.String(it, "description")
			qty, _ := extract.String(it, "quantity")
			price, _ := extract.String(it, "price_cents")
			inv.Items = append(inv.Items, Item{
				Description: desc,
				Quantity:    int(parseCents(qty)),
				PriceCents:  parseCents(price),
			})
		}
	}
	return inv, true
}

// ParseMethods normalizes a comma separated method list. Order and spaces
// do not matter; duplicates collapse.
func ParseMethods(s string) []string {
	seen := map[string]bool{}
	var out []string
	for _, part := range strings.Split(s, ",") {
		m := strings.ToLower(strings.TrimSpace(part))
		if m == "" || seen[m] {
			continue
		}
		seen[m] = true
		out = append(out, m)
	}
	return out
}

func parseCents(s string) int64 {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0
	}
	return d.IntPart()
}
