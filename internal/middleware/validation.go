package middleware

import (
	"sync"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	pkgvalidator "github.com/jwalitptl/clinic-booking/pkg/validator"
)

var registerOnce sync.Once

// RegisterValidators adds the custom tags and json field names to gin's binding engine.
func RegisterValidators() error {
	var err error
	registerOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		err = pkgvalidator.Register(v)
	})
	return err
}
