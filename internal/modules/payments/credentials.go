package payments

import (
	"context"
	"log/slog"
	"strings"

	"github.com/tidwall/gjson"
	"golang.org/x/sync/singleflight"

	"github.com/DKMA-Tecnologia-e-Marketing/sistema-inspecao-itl-sub000/internal/shared/extract"
)

// Token is the credential a gateway call is made with.
type Token struct {
	Value      string
	AccountID  string
	SubAccount bool
}

const masterAccount = "master"

type credentialSource interface {
	TenantCredential(ctx context.Context, tenantID string) (TenantGatewayCredential, error)
}

type subAccountTokenSource interface {
	MasterToken() string
	SubAccountTokens(ctx context.Context) (gjson.Result, error)
}

// CredentialResolver picks the token for a tenant: its own API token, then
// a fetched sub-account token, then the master token. It never fails.
type CredentialResolver struct {
	creds   credentialSource
	gw      subAccountTokenSource
	cache   *TokenCache
	sandbox bool
	group   singleflight.Group
	logger  *slog.Logger
}

func NewCredentialResolver(creds credentialSource, gw subAccountTokenSource, cache *TokenCache, sandbox bool) *CredentialResolver {
	if cache == nil {
		cache = NewTokenCache(0, nil)
	}
	return &CredentialResolver{creds: creds, gw: gw, cache: cache, sandbox: sandbox, logger: slog.Default()}
}

func (r *CredentialResolver) SetLogger(logger *slog.Logger) {
	r.logger = logger
}

func (r *CredentialResolver) Resolve(ctx context.Context, tenantID string) Token {
	cred, err := r.creds.TenantCredential(ctx, tenantID)
	if err != nil {
		r.logger.WarnContext(ctx, "tenant credential lookup failed, using master token", "tenant_id", tenantID, "err", err)
		return r.master()
	}

	subID := ""
	if cred.SubAccountID != nil {
		subID = strings.TrimSpace(*cred.SubAccountID)
	}
	if cred.APIToken != nil && strings.TrimSpace(*cred.APIToken) != "" {
		return Token{Value: strings.TrimSpace(*cred.APIToken), AccountID: subID, SubAccount: true}
	}
	if subID == "" {
		r.logger.WarnContext(ctx, "tenant has no gateway credential, using master token", "tenant_id", tenantID)
		return r.master()
	}

	if tok, ok := r.cache.Get(subID); ok {
		return Token{Value: tok, AccountID: subID, SubAccount: true}
	}

	v, err, _ := r.group.Do(subID, func() (any, error) {
		if tok, ok := r.cache.Get(subID); ok {
			return tok, nil
		}
		doc, err := r.gw.SubAccountTokens(ctx)
		if err != nil {
			return "", err
		}
		tok, ok := subAccountToken(doc, subID, r.sandbox)
		if !ok {
			return "", nil
		}
		r.cache.Set(subID, tok)
		return tok, nil
	})
	tok, _ := v.(string)
	if err != nil || tok == "" {
		r.logger.WarnContext(ctx, "sub-account token unavailable, using master token",
			"tenant_id", tenantID, "account_id", subID, "err", err)
		return r.master()
	}
	return Token{Value: tok, AccountID: subID, SubAccount: true}
}

// Invalidate drops a cached sub-account token, or all of them with "*".
func (r *CredentialResolver) Invalidate(subAccountID string) int {
	return r.cache.Invalidate(subAccountID)
}

func (r *CredentialResolver) master() Token {
	return Token{Value: r.gw.MasterToken(), AccountID: masterAccount}
}

// subAccountToken finds the token for accountID in any of the observed
// response shapes: keyed object, array of accounts, or flat id -> token
// map, optionally wrapped in "accounts" or "data".
func subAccountToken(doc gjson.Result, accountID string, sandbox bool) (string, bool) {
	var strategies []extract.Strategy[string]
	for _, root := range []string{"", "accounts", "data"} {
		strategies = append(strategies,
			keyedToken(root, accountID, sandbox),
			listedToken(root, accountID, sandbox),
		)
	}
	return extract.First(doc, strategies...)
}

func keyedToken(root, accountID string, sandbox bool) extract.Strategy[string] {
	return func(doc gjson.Result) (string, bool) {
		obj, ok := extract.Object(doc, root)
		if !ok {
			return "", false
		}
		v, ok := extract.Key(obj, accountID)
		if !ok {
			return "", false
		}
		if v.IsObject() {
			return tokenFields(sandbox)(v)
		}
		return extract.String(v, "")
	}
}

func listedToken(root, accountID string, sandbox bool) extract.Strategy[string] {
	return func(doc gjson.Result) (string, bool) {
		v, ok := extract.Path(doc, root)
		if !ok || !v.IsArray() {
			return "", false
		}
		for _, it := range v.Array() {
			id, _ := extract.First(it, extract.StringAt("id", "account_id"))
			if id != accountID {
				continue
			}
			return tokenFields(sandbox)(it)
		}
		return "", false
	}
}

func tokenFields(sandbox bool) extract.Strategy[string] {
	if sandbox {
		return extract.StringAt("test_api_token", "api_token", "token")
	}
	return extract.StringAt("live_api_token", "api_token", "token")
}
