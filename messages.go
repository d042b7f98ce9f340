package identity

// Canonical client facing messages. This is the only message table in the
// module; transports and subpackages reuse these values.
const (
	MsgUserAlreadyExists       = "User already exists"
	MsgExternalLoginExists     = "External login already exists"
	MsgEmailOrUsernameRequired = "Email or username is required"
	MsgPasswordRequired        = "Password is required"
	MsgInvalidEmail            = "Email address is invalid"
	MsgInvalidPhone            = "Phone number is invalid"
	MsgInvalidCredentials      = "Invalid credentials"
	MsgAccountLocked           = "Account is locked. Try again in %d minute(s)"
	MsgTokenMissing            = "Authentication token is missing"
	MsgTokenInvalid            = "Authentication token is invalid or expired"
	MsgMissingRole             = "Missing required role"
	MsgMissingPolicy           = "Missing required permission"
	MsgAccountNotFound         = "Account not found"
	MsgUserTokenInvalid        = "Invalid or expired code"
	MsgEmailAlreadyConfirmed   = "Email is already confirmed"
	MsgInternal                = "Internal server error"

	MsgRegistered       = "User registered successfully"
	MsgLoggedIn         = "Logged in successfully"
	MsgEmailConfirmed   = "Email confirmed successfully"
	MsgPasswordReset    = "Password reset successfully"
	MsgResetRequested   = "If the account exists a reset code has been sent"
	MsgConfirmationSent = "Confirmation code sent"
	MsgProviderLinked   = "Provider linked successfully"
	MsgProviderUnlinked = "Provider unlinked successfully"
)
