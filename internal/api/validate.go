package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"
	"unicode"

	"github.com/IlyasAtabaev731/tcg-trade/internal/domain/models"
	"github.com/go-playground/validator/v10"
)

var errMalformed = errors.New("malformed request body")

func newValidator() *validator.Validate {
	v := validator.New()

	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	mustRegister(v, "energy", func(fl validator.FieldLevel) bool {
		return models.IsEnergy(fl.Field().String())
	})
	mustRegister(v, "phase", func(fl validator.FieldLevel) bool {
		return models.IsPhase(fl.Field().String())
	})
	mustRegister(v, "rarity", func(fl validator.FieldLevel) bool {
		return models.IsRarity(fl.Field().String())
	})
	mustRegister(v, "strongpassword", func(fl validator.FieldLevel) bool {
		return isStrongPassword(fl.Field().String())
	})

	return v
}

func mustRegister(v *validator.Validate, tag string, fn validator.Func) {
	if err := v.RegisterValidation(tag, fn); err != nil {
		panic("Failed to register validation " + tag + ": " + err.Error())
	}
}

// isStrongPassword wants at least 8 characters with a lower case letter, an
// upper case letter, a digit and a symbol.
func isStrongPassword(s string) bool {
	if len(s) < 8 {
		return false
	}
	var lower, upper, digit, symbol bool
	for _, r := range s {
		switch {
		case unicode.IsLower(r):
			lower = true
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsDigit(r):
			digit = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			symbol = true
		}
	}
	return lower && upper && digit && symbol
}

// decode reads a JSON body into dst and validates it.
func (s *APIServer) decode(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return fmt.Errorf("%w: %v", errMalformed, err)
	}
	return s.validate.Struct(dst)
}

func describeValidation(errs validator.ValidationErrors) string {
	parts := make([]string, 0, len(errs))
	for _, fe := range errs {
		field := strings.SplitN(fe.Namespace(), ".", 2)
		name := fe.Namespace()
		if len(field) == 2 {
			name = field[1]
		}
		switch fe.Tag() {
		case "required":
			parts = append(parts, name+" is required")
		case "strongpassword":
			parts = append(parts, "Password is not strong enough")
		case "email":
			parts = append(parts, "Invalid email")
		case "energy", "phase", "rarity", "uuid":
			parts = append(parts, fmt.Sprintf("%s has an invalid %s value %q", name, fe.Tag(), fe.Value()))
		default:
			if fe.Param() != "" {
				parts = append(parts, fmt.Sprintf("%s must satisfy %s=%s", name, fe.Tag(), fe.Param()))
			} else {
				parts = append(parts, fmt.Sprintf("%s must satisfy %s", name, fe.Tag()))
			}
		}
	}
	return strings.Join(parts, "; ")
}

type signupRequest struct {
	Name     string `json:"name" validate:"required,max=20"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,strongpassword"`
}

type signinRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type attackRequest struct {
	Name     string   `json:"name" validate:"required,max=50"`
	Energies []string `json:"energies" validate:"required,min=1,dive,energy"`
	Damage   *int     `json:"damage" validate:"required,gte=0"`
	Effect   string   `json:"effect" validate:"max=500"`
}

type cardRequest struct {
	Name          string          `json:"name" validate:"required,max=20"`
	NPokeDex      int             `json:"nPokeDex" validate:"gt=0"`
	Type          string          `json:"type" validate:"required,energy"`
	Weakness      string          `json:"weakness" validate:"required,energy"`
	HP            int             `json:"hp" validate:"gt=0"`
	Attacks       []attackRequest `json:"attacks" validate:"dive"`
	RetreatCost   []string        `json:"retreatCost" validate:"dive,energy"`
	Phase         string          `json:"phase" validate:"required,phase"`
	Description   string          `json:"description" validate:"max=1000"`
	IsHolographic *bool           `json:"isHolographic" validate:"required"`
	Value         *int            `json:"value" validate:"required,gte=0"`
	Rarity        string          `json:"rarity" validate:"required,rarity"`
}

type catalogRequest struct {
	Name  string        `json:"name" validate:"required,max=20"`
	Cards []cardRequest `json:"cards" validate:"dive"`
}

type updateUserRequest struct {
	Name     *string `json:"name" validate:"omitempty,min=1,max=20"`
	Email    *string `json:"email" validate:"omitempty,email"`
	Password *string `json:"password" validate:"omitempty,strongpassword"`
}

type tradeRequestBody struct {
	RequesterUserID string `json:"requesterUserId" validate:"required,uuid"`
	RequesterCardID string `json:"requesterCardId" validate:"required,uuid"`
	TargetUserID    string `json:"targetUserId" validate:"omitempty,uuid"`
	TargetCardID    string `json:"targetCardId" validate:"required,uuid"`
	Message         string `json:"message" validate:"max=500"`
}

type tradeUpdateBody struct {
	RequesterCardID string `json:"requesterCardId" validate:"required,uuid"`
	TargetCardID    string `json:"targetCardId" validate:"required,uuid"`
	Message         string `json:"message" validate:"max=500"`
}

type transactionRequest struct {
	UserID1 string `json:"userId1" validate:"required,uuid"`
	UserID2 string `json:"userId2" validate:"required,uuid,nefield=UserID1"`
	CardID1 string `json:"cardId1" validate:"required,uuid"`
	CardID2 string `json:"cardId2" validate:"required,uuid"`
}
