package identity

import (
	"errors"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/nyaruka/phonenumbers"
)

// DefaultPhoneRegion is used to parse phone numbers without a country prefix.
const DefaultPhoneRegion = "US"

// RegisterInput is the payload accepted by Service.Register.
type RegisterInput struct {
	Email       string `json:"email"`
	Username    string `json:"username"`
	Password    string `json:"password"`
	PhoneNumber string `json:"phone_number"`
}

// Normalized returns a copy with surrounding whitespace removed and the phone
// number rewritten in E.164 form when it parses.
func (r RegisterInput) Normalized() RegisterInput {
	r.Email = strings.TrimSpace(r.Email)
	r.Username = strings.TrimSpace(r.Username)
	r.PhoneNumber = strings.TrimSpace(r.PhoneNumber)
	if r.PhoneNumber != "" {
		if e164, err := NormalizePhone(r.PhoneNumber, DefaultPhoneRegion); err == nil {
			r.PhoneNumber = e164
		}
	}
	return r
}

// Validate checks the identifier, password, and the optional email format and
// phone number. The first failure is reported as ErrValidation with a public
// message from the canonical table.
func (r RegisterInput) Validate() error {
	if Normalize(r.Email) == "" && Normalize(r.Username) == "" {
		return NewError(ErrValidation, CodeValidation, MsgEmailOrUsernameRequired)
	}

	err := validation.ValidateStruct(&r,
		validation.Field(&r.Password, validation.Required),
		validation.Field(&r.Email, is.Email),
		validation.Field(&r.PhoneNumber, validation.By(validPhone)),
	)
	if err == nil {
		return nil
	}

	fields, ok := err.(validation.Errors)
	if !ok {
		return NewError(ErrValidation, CodeValidation, err.Error())
	}
	switch {
	case fields["password"] != nil:
		return NewError(ErrValidation, CodeValidation, MsgPasswordRequired, "field", "password")
	case fields["email"] != nil:
		return NewError(ErrValidation, CodeValidation, MsgInvalidEmail, "field", "email")
	case fields["phone_number"] != nil:
		return NewError(ErrValidation, CodeValidation, MsgInvalidPhone, "field", "phone_number")
	}
	return NewError(ErrValidation, CodeValidation, fields.Error())
}

// NormalizePhone parses number and formats it as E.164.
func NormalizePhone(number, region string) (string, error) {
	parsed, err := phonenumbers.Parse(number, region)
	if err != nil {
		return "", err
	}
	if !phonenumbers.IsValidNumber(parsed) {
		return "", errors.New(MsgInvalidPhone)
	}
	return phonenumbers.Format(parsed, phonenumbers.E164), nil
}

func validPhone(value any) error {
	s, _ := value.(string)
	if strings.TrimSpace(s) == "" {
		return nil
	}
	_, err := NormalizePhone(s, DefaultPhoneRegion)
	return err
}
