package social

import (
	identity "github.com/goliatone/go-identity"
)

const (
	TextCodeAlreadyLinked       = "SOCIAL_ALREADY_LINKED"
	TextCodeLinkedElsewhere     = "SOCIAL_LINKED_ELSEWHERE"
	TextCodeProviderInUse       = "SOCIAL_PROVIDER_ALREADY_LINKED"
	TextCodeLastAuthMethod      = "SOCIAL_LAST_AUTH_METHOD"
	TextCodeProviderNotLinked   = "SOCIAL_PROVIDER_NOT_LINKED"
	TextCodeInvalidProfile      = "SOCIAL_INVALID_PROFILE"
	TextCodeEmailNotVerified    = "SOCIAL_EMAIL_NOT_VERIFIED"
	TextCodeSignupDisabled      = "SOCIAL_SIGNUP_DISABLED"
	TextCodeLinkingDisabled     = "SOCIAL_LINKING_DISABLED"
	TextCodeOwnerAccountMissing = "SOCIAL_OWNER_MISSING"
	TextCodeInvalidCredential   = "SOCIAL_INVALID_CREDENTIAL"
	TextCodeVerificationFailed  = "SOCIAL_VERIFICATION_FAILED"
)

const (
	MsgAlreadyLinked     = "Provider is already linked to this account"
	MsgLinkedElsewhere   = "Provider account is already linked to another user"
	MsgProviderInUse     = "A login for this provider is already linked to the account"
	MsgLastAuthMethod    = "Cannot unlink the last authentication method"
	MsgProviderNotLinked = "Provider is not linked to this account"
	MsgEmailNotVerified  = "Provider email is not verified"
	MsgSignupDisabled    = "Sign up through this provider is not allowed"
	MsgLinkingDisabled   = "Linking to an existing account is not allowed"
	MsgCredentialMissing = "An authorization code or ID token is required"
	MsgVerifyFailed      = "Provider could not verify the credential"
)

func errAlreadyLinked(accountID, provider string) error {
	return identity.NewError(identity.ErrBadRequest, TextCodeAlreadyLinked, MsgAlreadyLinked,
		"account_id", accountID, "provider", provider)
}

func errLinkedElsewhere(accountID, provider string) error {
	return identity.NewError(identity.ErrConflict, TextCodeLinkedElsewhere, MsgLinkedElsewhere,
		"account_id", accountID, "provider", provider)
}

func errProviderInUse(accountID, provider string) error {
	return identity.NewError(identity.ErrBadRequest, TextCodeProviderInUse, MsgProviderInUse,
		"account_id", accountID, "provider", provider)
}

func errLastAuthMethod(accountID, provider string) error {
	return identity.NewError(identity.ErrBadRequest, TextCodeLastAuthMethod, MsgLastAuthMethod,
		"account_id", accountID, "provider", provider)
}

func errProviderNotLinked(accountID, provider string) error {
	return identity.NewError(identity.ErrNotFound, TextCodeProviderNotLinked, MsgProviderNotLinked,
		"account_id", accountID, "provider", provider)
}

func errVerificationFailed(provider string, cause error) error {
	return identity.NewError(identity.ErrUnauthenticated, TextCodeVerificationFailed, MsgVerifyFailed,
		"provider", provider, "cause", cause.Error())
}
