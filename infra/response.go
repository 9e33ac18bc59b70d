package infra

import (
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
)

type Code string

const (
	CodeSuccess          Code = "SUCCESS"
	CodeFail             Code = "FAIL"
	CodeUserNotExist     Code = "USER_NOT_EXIST"
	CodeUserAlreadyExist Code = "USER_ALREADY_EXIST"
	CodeNoPermission     Code = "NO_PERMISSION"
	CodeInvalidParam     Code = "INVALID_PARAM"
)

var codeMessages = map[Code]string{
	CodeSuccess:          "success",
	CodeFail:             "fail",
	CodeUserNotExist:     "user does not exist",
	CodeUserAlreadyExist: "user already exists",
	CodeNoPermission:     "no permission",
	CodeInvalidParam:     "invalid parameter",
}

func (c Code) Message() string {
	if msg, ok := codeMessages[c]; ok {
		return msg
	}
	return string(c)
}

// CodeError is a business rule failure. It travels back to the client inside
// a normal 200 envelope.
type CodeError struct {
	Code Code
}

func NewCodeError(code Code) *CodeError {
	return &CodeError{Code: code}
}

func (e *CodeError) Error() string {
	return e.Code.Message()
}

type Response struct {
	Status  int         `json:"status"`
	Code    string      `json:"code"`
	Message interface{} `json:"message"`
	Data    interface{} `json:"data,omitempty"`
	Ack     int64       `json:"ack"`
}

func Result(status int, msg interface{}, c *fiber.Ctx) error {
	return c.Status(status).JSON(Response{
		Code:    http.StatusText(status),
		Status:  status,
		Message: msg,
		Ack:     time.Now().UnixMilli(),
	})
}

func CodeResult(code Code, data interface{}, c *fiber.Ctx) error {
	return c.Status(http.StatusOK).JSON(Response{
		Code:    string(code),
		Status:  http.StatusOK,
		Message: code.Message(),
		Data:    data,
		Ack:     time.Now().UnixMilli(),
	})
}

func Ok(c *fiber.Ctx) error {
	return CodeResult(CodeSuccess, nil, c)
}

func OkWithData(data interface{}, c *fiber.Ctx) error {
	return CodeResult(CodeSuccess, data, c)
}

func FailWithCode(code Code, c *fiber.Ctx) error {
	return CodeResult(code, nil, c)
}

func Fail(status int, c *fiber.Ctx) error {
	return Result(status, http.StatusText(status), c)
}

func FailWithMessage(status int, message interface{}, c *fiber.Ctx) error {
	return Result(status, message, c)
}
