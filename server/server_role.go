// go:controller(path="/role",name="roles")
package server

import (
	"community-server/infra"

	"github.com/gofiber/fiber/v2"
)

// go:interface(method="POST",path="/all",auth="role.query",opLog="list roles")
func (srv *CommunityServer) GetRoles(ctx *fiber.Ctx) error {
	roles, err := srv.db.GetRoles(ctx.UserContext())
	if err != nil {
		return err
	}
	return infra.OkWithData(roles, ctx)
}
