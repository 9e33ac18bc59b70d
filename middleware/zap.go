package middleware

import (
	"os"
	"strconv"
	"strings"
	"time"

	"community-server/conf"
	"community-server/infra"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// LogConfig configures the request log.
type LogConfig struct {
	// Next skips the log for a request when it returns true.
	Next func(c *fiber.Ctx) bool
	// Logger defaults to zap.NewProduction().
	Logger *zap.Logger
	// Fields are the names in requestFields and responseFields to log.
	// Default: latency, status, method, url.
	Fields []string
	// Messages for server errors, client errors and successes.
	Messages []string
	// Permits names the operation behind each route in the "opLog" field.
	Permits *conf.PermitSpec
}

var defaultFields = []string{"latency", "status", "method", "url"}
var defaultMessages = []string{"Server error", "Client error", "Success"}

var pid = strconv.Itoa(os.Getpid())

// requestFields are read before the handler chain runs.
var requestFields = map[string]func(c *fiber.Ctx) zap.Field{
	"referer":       func(c *fiber.Ctx) zap.Field { return zap.String("referer", c.Get(fiber.HeaderReferer)) },
	"protocol":      func(c *fiber.Ctx) zap.Field { return zap.String("protocol", c.Protocol()) },
	"pid":           func(c *fiber.Ctx) zap.Field { return zap.String("pid", pid) },
	"port":          func(c *fiber.Ctx) zap.Field { return zap.String("port", c.Port()) },
	"ip":            func(c *fiber.Ctx) zap.Field { return zap.String("ip", c.IP()) },
	"ips":           func(c *fiber.Ctx) zap.Field { return zap.String("ips", c.Get(fiber.HeaderXForwardedFor)) },
	"host":          func(c *fiber.Ctx) zap.Field { return zap.String("host", c.Hostname()) },
	"path":          func(c *fiber.Ctx) zap.Field { return zap.String("path", c.Path()) },
	"url":           func(c *fiber.Ctx) zap.Field { return zap.String("url", c.OriginalURL()) },
	"ua":            func(c *fiber.Ctx) zap.Field { return zap.String("ua", c.Get(fiber.HeaderUserAgent)) },
	"method":        func(c *fiber.Ctx) zap.Field { return zap.String("method", c.Method()) },
	"bytesReceived": func(c *fiber.Ctx) zap.Field { return zap.Int("bytesReceived", len(c.Request().Body())) },
}

// responseFields are read once the handler chain and the error handler are done.
var responseFields = map[string]func(c *fiber.Ctx, start time.Time, chainErr error) zap.Field{
	"latency": func(_ *fiber.Ctx, start time.Time, _ error) zap.Field {
		return zap.Duration("latency", time.Since(start))
	},
	"status": func(c *fiber.Ctx, _ time.Time, _ error) zap.Field {
		return zap.Int("status", c.Response().StatusCode())
	},
	"user": func(c *fiber.Ctx, _ time.Time, _ error) zap.Field {
		if auth := GetAuthentication(c); auth != nil {
			return zap.String("user", auth.Principal())
		}
		return zap.Skip()
	},
	"resBody": func(c *fiber.Ctx, _ time.Time, _ error) zap.Field {
		if strings.Contains(string(c.Response().Header.ContentType()), fiber.MIMEApplicationJSON) {
			return zap.ByteString("resBody", c.Response().Body())
		}
		return zap.Skip()
	},
	"bytesSent": func(c *fiber.Ctx, _ time.Time, _ error) zap.Field {
		return zap.Int("bytesSent", len(c.Response().Body()))
	},
	"error": func(_ *fiber.Ctx, _ time.Time, chainErr error) zap.Field {
		if chainErr != nil {
			return zap.String("error", chainErr.Error())
		}
		return zap.Skip()
	},
}

// NewFiberLog logs every request once its response is written. Errors from
// the chain are passed to the app's error handler here, so the logged status
// is the one the client sees.
func NewFiberLog(cfg LogConfig) fiber.Handler {
	if cfg.Logger == nil {
		cfg.Logger, _ = zap.NewProduction()
	}
	if len(cfg.Fields) == 0 {
		cfg.Fields = defaultFields
	}
	if len(cfg.Messages) != 3 {
		cfg.Messages = defaultMessages
	}
	opLogs := opLogTrie(cfg.Permits)

	return func(c *fiber.Ctx) error {
		if cfg.Next != nil && cfg.Next(c) {
			return c.Next()
		}
		start := time.Now()
		fields := make([]zap.Field, 0, len(cfg.Fields)+1)
		if match, err := opLogs.Match(c.Path()); err == nil {
			fields = append(fields, zap.Any("opLog", match.Node.Value))
		}
		for _, name := range cfg.Fields {
			if field, ok := requestFields[name]; ok {
				fields = append(fields, field(c))
			}
		}
		cfg.Logger.Debug("Request", fields...)

		chainErr := c.Next()
		if chainErr != nil {
			if err := c.App().Config().ErrorHandler(c, chainErr); err != nil {
				_ = c.SendStatus(fiber.StatusInternalServerError)
			}
		}

		for _, name := range cfg.Fields {
			if field, ok := responseFields[name]; ok {
				fields = append(fields, field(c, start, chainErr))
			}
		}
		switch s := c.Response().StatusCode(); {
		case s >= fiber.StatusInternalServerError:
			cfg.Logger.Error(cfg.Messages[0], fields...)
		case s >= fiber.StatusBadRequest:
			cfg.Logger.Warn(cfg.Messages[1], fields...)
		default:
			cfg.Logger.Info(cfg.Messages[2], fields...)
		}
		return nil
	}
}

// opLogTrie maps each route of the permit table to its operation name, the
// part after '|'.
func opLogTrie(permits *conf.PermitSpec) *infra.Trie {
	opLogs := infra.NewTrie()
	if permits == nil {
		return opLogs
	}
	for _, v := range permits.Authentications {
		if _, op, ok := strings.Cut(v.Permit, "|"); ok {
			opLogs.Parse("/api"+v.Url, op)
		}
	}
	for _, k := range permits.WhiteList {
		if url, op, ok := strings.Cut(k, "|"); ok {
			opLogs.Parse("/api"+url, op)
		}
	}
	return opLogs
}
