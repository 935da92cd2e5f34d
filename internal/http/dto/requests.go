package dto

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

type TokenRequest struct {
	OperatorKey string `json:"operator_key" validate:"required"`
}

type PayoutQuery struct {
	CampaignID string `query:"campaign_id" validate:"omitempty,max=64"`
	Limit      int    `query:"limit" validate:"gte=0,lte=200"`
	Offset     int    `query:"offset" validate:"gte=0"`
}

// Validate checks struct tags and flattens the failures into one message.
func Validate(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		return err
	}
	parts := make([]string, 0, len(ve))
	for _, fe := range ve {
		parts = append(parts, fmt.Sprintf("%s failed %s", strings.ToLower(fe.Field()), fe.Tag()))
	}
	return errors.New(strings.Join(parts, "; "))
}
