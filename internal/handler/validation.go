package handler

import (
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"github.com/shaysadin/wedding-rsvp-sub004/internal/model"
)

// RegisterValidations adds the domain enums to gin's binding validator so
// request structs can declare them as tags.
func RegisterValidations() {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return
	}
	v.RegisterValidation("msgtype", func(fl validator.FieldLevel) bool {
		return model.MessageType(fl.Field().String()).Valid()
	})
	v.RegisterValidation("channel", func(fl validator.FieldLevel) bool {
		value := fl.Field().String()
		return value == "" || model.Channel(value).Valid()
	})
}
