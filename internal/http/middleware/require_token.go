package middleware

import (
	"crypto/subtle"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/DKMA-Tecnologia-e-Marketing/sistema-inspecao-itl-sub000/internal/shared/apperr"
)

// RequireBearer guards a route group with a static API token sent as
// "Authorization: Bearer <token>". An empty token rejects every call.
func RequireBearer(token string) gin.HandlerFunc {
	return func(c *gin.Context) {
		got, ok := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer ")
		if !ok || token == "" || !equal(strings.TrimSpace(got), token) {
			c.Header("WWW-Authenticate", `Bearer realm="payments"`)
			Fail(c, apperr.UnauthorizedErr("Credenciais inválidas."))
			return
		}
		c.Next()
	}
}

// RequireSharedSecret checks a webhook secret carried in header. An empty
// secret disables the check.
func RequireSharedSecret(header, secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if secret == "" {
			c.Next()
			return
		}
		got := strings.TrimSpace(c.GetHeader(header))
		got = strings.TrimPrefix(got, "Bearer ")
		if !equal(got, secret) {
			Fail(c, apperr.UnauthorizedErr("Assinatura do webhook inválida."))
			return
		}
		c.Next()
	}
}

func equal(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
