package server

import (
	"reflect"
	"strings"

	"community-server/service"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
)

type ErrorResponse struct {
	FailedField string
	Rule        string
	ErrValue    interface{}
}

type ValidationErrors []*ErrorResponse

func (v ValidationErrors) Error() string {
	fields := make([]string, 0, len(v))
	for _, e := range v {
		fields = append(fields, e.FailedField+":"+e.Rule)
	}
	return "invalid request: " + strings.Join(fields, ", ")
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterCustomTypeFunc(optionalValue,
		service.Optional[string]{},
		service.Optional[int]{},
		service.Optional[int64]{},
		service.Optional[bool]{},
	)
	return v
}

// optionalValue lets validation rules see through service.Optional.
func optionalValue(field reflect.Value) interface{} {
	if o, ok := field.Interface().(interface{ Any() any }); ok {
		return o.Any()
	}
	return nil
}

func ValidateStruct(s interface{}) ValidationErrors {
	var errs ValidationErrors
	err := validate.Struct(s)
	if err == nil {
		return nil
	}
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return ValidationErrors{{Rule: err.Error()}}
	}
	for _, e := range verrs {
		errs = append(errs, &ErrorResponse{
			FailedField: e.StructNamespace(),
			Rule:        e.Tag(),
			ErrValue:    e.Value(),
		})
	}
	return errs
}

// bind decodes the JSON body of ctx into req and validates it. An empty body
// leaves req at its zero value.
func bind(ctx *fiber.Ctx, req interface{}) error {
	if len(ctx.Body()) > 0 {
		if err := json.Unmarshal(ctx.Body(), req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "malformed request body")
		}
	}
	if errs := ValidateStruct(req); errs != nil {
		return errs
	}
	return nil
}
