// Package dto holds the request shapes of the admin API together with the
// binding rules gin enforces on them.
package dto

import (
	"github.com/Laisky/errors/v2"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"github.com/fuchsia74/grok-api/model"
)

// TokenImportRequest carries a batch of upstream credentials to store and
// adopt into the live pool. Values may include the raw cookie prefix, the
// handler normalizes them before insert.
type TokenImportRequest struct {
	Pool   string   `json:"pool" binding:"omitempty,pooltype"`
	Tokens []string `json:"tokens" binding:"required,min=1,dive,min=1"`
}

// TokenUpdateRequest is the editable subset of a stored credential. Nil
// fields leave the row untouched so a note edit never clobbers quota.
type TokenUpdateRequest struct {
	Pool   *string `json:"pool" binding:"omitempty,pooltype"`
	Status *int    `json:"status" binding:"omitempty,min=1,max=4"`
	Quota  *int    `json:"quota" binding:"omitempty,min=0"`
	Tags   *string `json:"tags"`
	Note   *string `json:"note"`
}

// RegisterCustomValidators hooks the gateway's field rules into gin's
// binding engine. Call once during startup, before the router is built.
func RegisterCustomValidators() error {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return errors.New("gin binding validator engine is not *validator.Validate")
	}
	if err := v.RegisterValidation("pooltype", validPoolType); err != nil {
		return errors.Wrap(err, "register pooltype validation")
	}
	return nil
}

func validPoolType(fl validator.FieldLevel) bool {
	switch fl.Field().String() {
	case model.PoolBasic, model.PoolSuper:
		return true
	default:
		return false
	}
}
