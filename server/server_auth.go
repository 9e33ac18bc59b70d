// go:controller(path="/auth",name="auth")
package server

import (
	"errors"

	"community-server/infra"
	"community-server/middleware"

	"github.com/gofiber/fiber/v2"
)

type SignRequest struct {
	Username string `json:"username" validate:"required,max=50"`
	Password string `json:"password" validate:"required"`
}

// go:interface(method="POST",path="/sign",opLog="sign in")
func (srv *CommunityServer) Sign(ctx *fiber.Ctx) error {
	var req SignRequest
	if err := bind(ctx, &req); err != nil {
		return err
	}
	user, err := srv.auth.Authenticate(ctx.UserContext(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, infra.ErrBadCredentials) ||
			errors.Is(err, infra.ErrUserBanned) ||
			errors.Is(err, infra.ErrIdentityLocked) {
			return srv.auth.OnAuthFailedHandler(req.Username, err, ctx)
		}
		return err
	}
	return srv.auth.OnAuthSuccessHandler(user, ctx)
}

// go:interface(method="POST",path="/logout",auth="any",opLog="sign out")
func (srv *CommunityServer) Logout(ctx *fiber.Ctx) error {
	claim := middleware.GetClaim(ctx)
	if claim == nil {
		return fiber.ErrUnauthorized
	}
	return srv.auth.OnSignOutHandler(claim, ctx)
}
