package server

import (
	"errors"
	"net/http"

	"community-server/conf"
	"community-server/db"
	"community-server/infra"
	"community-server/middleware"
	"community-server/service"

	"github.com/gofiber/fiber/v2"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"
)

//go:generate go run ../anno --server . --router router.go --permit ../conf/permit.yml

var json = jsoniter.Config{
	EscapeHTML:             false,
	SortMapKeys:            true,
	ValidateJsonRawMessage: true,
}.Froze()

type CommunityServer struct {
	app   *fiber.App
	cfg   *conf.GConfig
	auth  *infra.Authorization
	db    *db.DB
	users *service.UserService
	log   *zap.Logger
}

func NewServer(conf *conf.GConfig, logger *zap.Logger, dbms *db.DB, sessions infra.SessionStore) (*CommunityServer, error) {
	engine := fiber.New(fiber.Config{
		CaseSensitive:         true,
		AppName:               "COMMUNITY-SERVER",
		ReduceMemoryUsage:     true,
		DisableStartupMessage: true,
		JSONEncoder:           json.Marshal,
		JSONDecoder:           json.Unmarshal,
		ErrorHandler:          errorHandler(logger.Named("[Error]")),
	})
	auth := infra.NewAuthorization(conf.AuthCfg, dbms, sessions, logger.Named("[AUTH]"))
	middleware.Use(engine, logger.Named("\u001B[33m[Engine]\u001B[0m"), conf.AppCfg, conf.AuthCfg, auth)

	srv := &CommunityServer{
		app:   engine,
		cfg:   conf,
		auth:  auth,
		db:    dbms,
		users: service.NewUserService(dbms, dbms, logger.Named("[User]")),
		log:   logger.Named("\u001B[32m[Server]\u001B[0m"),
	}
	root := engine.Group("/api")
	srv.Register(root)
	return srv, nil
}

func (srv *CommunityServer) App() *fiber.App {
	return srv.app
}

func (srv *CommunityServer) StartHttpServer() {
	err := srv.app.Listen(srv.cfg.AppCfg.HttpAddr)
	if err != nil {
		srv.log.Error("start community server http err:", zap.Error(err))
		return
	}
}

func (srv *CommunityServer) Close() {
	srv.auth.Close()
	err := srv.app.Shutdown()
	if err != nil {
		srv.log.Error("stop community server err:", zap.Error(err))
		return
	}
	srv.log.Info("\u001B[32m community server close complete\u001B[0m")
}

// caller is the signed-in user of ctx. Handlers behind an "any" permit always
// have one; the check covers routes missing from the permit table.
func (srv *CommunityServer) caller(ctx *fiber.Ctx) (*infra.Authentication, error) {
	auth := middleware.GetAuthentication(ctx)
	if auth == nil {
		return nil, fiber.ErrUnauthorized
	}
	return auth, nil
}

// errorHandler maps handler errors onto the response envelope. Result codes
// go out with 200, denials with 403.
func errorHandler(log *zap.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		var (
			codeErr  *infra.CodeError
			denied   *infra.DeniedError
			invalid  ValidationErrors
			fiberErr *fiber.Error
		)
		switch {
		case errors.As(err, &codeErr):
			return infra.FailWithCode(codeErr.Code, c)
		case errors.As(err, &denied):
			return infra.FailWithMessage(http.StatusForbidden, denied.Reason, c)
		case errors.As(err, &invalid):
			return infra.FailWithMessage(http.StatusBadRequest, invalid, c)
		case errors.As(err, &fiberErr):
			return infra.FailWithMessage(fiberErr.Code, fiberErr.Message, c)
		}
		log.Error("request failed", zap.String("path", c.Path()), zap.Error(err))
		return infra.Fail(http.StatusInternalServerError, c)
	}
}
