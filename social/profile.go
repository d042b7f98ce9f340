package social

import (
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"

	identity "github.com/goliatone/go-identity"
)

// Profile is the identity asserted by an external provider after a
// successful OAuth exchange.
type Profile struct {
	Provider      string `json:"provider"`
	ProviderKey   string `json:"provider_id"`
	Email         string `json:"email,omitempty"`
	EmailVerified bool   `json:"email_verified"`
	DisplayName   string `json:"display_name,omitempty"`
}

// Normalized returns a copy with a lower case provider and trimmed fields.
func (p Profile) Normalized() Profile {
	p.Provider = strings.ToLower(strings.TrimSpace(p.Provider))
	p.ProviderKey = strings.TrimSpace(p.ProviderKey)
	p.Email = strings.TrimSpace(p.Email)
	p.DisplayName = strings.TrimSpace(p.DisplayName)
	return p
}

// Validate requires a provider and key, and a well formed email when one is
// present.
func (p Profile) Validate() error {
	err := validation.ValidateStruct(&p,
		validation.Field(&p.Provider, validation.Required),
		validation.Field(&p.ProviderKey, validation.Required),
		validation.Field(&p.Email, is.Email),
	)
	if err != nil {
		return identity.NewError(identity.ErrValidation, TextCodeInvalidProfile, err.Error(),
			"provider", p.Provider)
	}
	return nil
}
