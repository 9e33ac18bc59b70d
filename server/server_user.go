// go:controller(path="/user",name="users")
package server

import (
	"community-server/infra"
	"community-server/service"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// go:interface(method="POST",path="/info",auth="any",opLog="user info")
func (srv *CommunityServer) Info(ctx *fiber.Ctx) error {
	caller, err := srv.caller(ctx)
	if err != nil {
		return err
	}
	var req service.InfoRequest
	if err = bind(ctx, &req); err != nil {
		return err
	}
	user, err := srv.users.GetInfo(ctx.UserContext(), caller, req)
	if err != nil {
		return err
	}
	return infra.OkWithData(user, ctx)
}

// go:interface(method="POST",path="/update",auth="any",opLog="update user")
func (srv *CommunityServer) Update(ctx *fiber.Ctx) error {
	caller, err := srv.caller(ctx)
	if err != nil {
		return err
	}
	var req service.UpdateRequest
	if err = bind(ctx, &req); err != nil {
		return err
	}
	rows, err := srv.users.Update(ctx.UserContext(), caller, req)
	if err != nil {
		return err
	}
	if req.Ban.Present() {
		target := req.Id.Or(caller.Id())
		if err = srv.auth.RemoveAuthentication(ctx.UserContext(), target); err != nil {
			srv.log.Error("revoke sessions after ban change", zap.Int64("user", target), zap.Error(err))
		}
	}
	return infra.OkWithData(rows, ctx)
}

// go:interface(method="POST",path="/users",auth="any",opLog="list users")
func (srv *CommunityServer) Users(ctx *fiber.Ctx) error {
	caller, err := srv.caller(ctx)
	if err != nil {
		return err
	}
	var req service.UsersRequest
	if err = bind(ctx, &req); err != nil {
		return err
	}
	page, err := srv.users.ListUsers(ctx.UserContext(), caller, req)
	if err != nil {
		return err
	}
	return infra.OkWithData(page, ctx)
}
