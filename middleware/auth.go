package middleware

import (
	"errors"
	"net/http"
	"strings"

	"community-server/infra"

	"github.com/gofiber/fiber/v2"
)

const (
	authKey  = "auth"
	claimKey = "claim"
)

func NewAuthFilter(authHandler *infra.Authorization) fiber.Handler {
	return func(c *fiber.Ctx) error {
		match, permit, _ := authHandler.TrieSearch(c.Path())
		// unknown paths fall through to fiber's 404
		if !match || permit == infra.PermitPublic {
			return c.Next()
		}
		tokenStr, ok := extractToken(c)
		if !ok {
			return infra.FailWithMessage(http.StatusUnauthorized, "not authorized", c)
		}
		claim, err := authHandler.ParseToken(tokenStr)
		if err != nil {
			if !errors.Is(err, infra.ErrTokenExpired) {
				return infra.FailWithMessage(http.StatusUnauthorized, err.Error(), c)
			}
			// token expire renewal
			var tokenNew string
			tokenNew, claim, err = authHandler.RefreshToken(tokenStr)
			if err != nil {
				return infra.FailWithMessage(http.StatusUnauthorized, err.Error(), c)
			}
			c.Set("Authorization", "Bearer "+tokenNew)
			c.Set("Access-Control-Expose-Headers", "Authorization")
		}
		authentication, err := authHandler.GetAuthentication(c.UserContext(), claim)
		if err != nil {
			return infra.FailWithMessage(http.StatusUnauthorized, err.Error(), c)
		}
		if d := authentication.Check(permit.(string)); !d.Allowed {
			return infra.FailWithMessage(http.StatusForbidden, d.Reason, c)
		}
		c.Locals(authKey, authentication)
		c.Locals(claimKey, claim)
		return c.Next()
	}
}

func extractToken(req *fiber.Ctx) (string, bool) {
	tokenHeader := req.Get("Authorization")
	// The usual convention is for "Bearer" to be title-cased. However, there's no
	// strict rule around this, and it's best to follow the robustness principle here.
	if tokenHeader == "" || !strings.HasPrefix(strings.ToLower(tokenHeader), "bearer ") {
		return "", false
	}
	return tokenHeader[7:], true
}

// GetAuthentication returns the caller set by the auth filter, or nil on
// public routes.
func GetAuthentication(ctx *fiber.Ctx) *infra.Authentication {
	if auth, ok := ctx.Locals(authKey).(*infra.Authentication); ok {
		return auth
	}
	return nil
}

func GetClaim(ctx *fiber.Ctx) *infra.JWTClaims {
	if claim, ok := ctx.Locals(claimKey).(*infra.JWTClaims); ok {
		return claim
	}
	return nil
}
