// Package identity provides account storage, credential checks and signed
// bearer tokens for services that share one identity store.
//
// Accounts:
//   - Register normalizes email, username and phone number, hashes the
//     password with bcrypt and rejects identifiers already held by an active
//     account. Normalized identifiers are the upper case lookup form.
//   - Login applies the lockout policy: failed password checks persist a
//     counter, and reaching the threshold locks the account for the configured
//     window. Attempts made while locked are not counted.
//
// Tokens:
//   - TokenCodec signs and verifies EdDSA JWTs. Issued tokens carry the
//     account's roles and its deduplicated policy claims. A codec built from a
//     public key only can verify but never sign.
//   - Authorize checks a Principal against Requirements without storage;
//     Service.AuthorizeLive re-resolves roles and policies first.
//
// Activity sinks:
//   - ActivitySink receives login, registration, lockout, provider and
//     password reset events after the originating transaction commits. Sink
//     errors are logged and never fail the operation. One time codes for
//     email confirmation and password reset are delivered in event metadata
//     under "code".
//
// Storage lives in the repository subpackage (bun, sqlite or postgres),
// redis backed token values in tokenstore, provider logins in social and
// go-router routes in httpapi and middleware/gate, served through the fiber
// adapter.
package identity
