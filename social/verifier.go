package social

import (
	"context"
	"strings"

	identity "github.com/goliatone/go-identity"
)

// Credential is what a client brings back from the provider's consent
// screen: an authorization code to exchange, or an ID token to check.
type Credential struct {
	Code        string `json:"code,omitempty"`
	IDToken     string `json:"id_token,omitempty"`
	RedirectURI string `json:"redirect_uri,omitempty"`
	State       string `json:"state,omitempty"`
}

// Empty reports whether c carries nothing a provider could verify.
func (c Credential) Empty() bool {
	return strings.TrimSpace(c.Code) == "" && strings.TrimSpace(c.IDToken) == ""
}

// ProfileVerifier exchanges a provider credential for the profile the
// provider asserts. HTTP routes only hand the linker profiles returned by a
// verifier; a profile in the request body is never trusted.
type ProfileVerifier interface {
	VerifyProfile(ctx context.Context, provider string, cred Credential) (Profile, error)
}

// ProfileVerifierFunc adapts a function to ProfileVerifier.
type ProfileVerifierFunc func(ctx context.Context, provider string, cred Credential) (Profile, error)

func (f ProfileVerifierFunc) VerifyProfile(ctx context.Context, provider string, cred Credential) (Profile, error) {
	return f(ctx, provider, cred)
}

// verifyProfile runs v and pins the result to the provider named by the
// caller, so a verifier for one provider cannot mint logins for another.
func verifyProfile(ctx context.Context, v ProfileVerifier, provider string, cred Credential) (Profile, error) {
	provider = strings.ToLower(strings.TrimSpace(provider))
	if cred.Empty() {
		return Profile{}, identity.NewError(identity.ErrBadRequest, TextCodeInvalidCredential, MsgCredentialMissing,
			"provider", provider)
	}

	profile, err := v.VerifyProfile(ctx, provider, cred)
	if err != nil {
		if identity.IsKind(err) {
			return Profile{}, err
		}
		return Profile{}, errVerificationFailed(provider, err)
	}

	profile.Provider = provider
	return profile, nil
}
