package middleware

import (
	"fmt"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	pkgvalidator "github.com/jwalitptl/consult-api/pkg/validator"
)

// RegisterValidation installs the custom tags on gin's binding engine and
// makes JSON decoding reject unknown fields. Call once before serving.
func RegisterValidation() error {
	binding.EnableDecoderDisallowUnknownFields = true

	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return fmt.Errorf("unexpected binding engine %T", binding.Validator.Engine())
	}
	return pkgvalidator.Register(v)
}
