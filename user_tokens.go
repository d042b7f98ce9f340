package identity

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"math/big"
	"strings"

	"github.com/uptrace/bun"
)

// Built in user token purposes and the default provider name.
const (
	DefaultTokenProvider = "Default"

	PurposeEmailConfirmation = "EmailConfirmation"
	PurposePasswordReset     = "ResetPassword"
	PurposeTwoFactor         = "TwoFactor"
)

const opaqueTokenBytes = 32

// GenerateUserToken creates a single purpose code for accountID and stores it,
// replacing any live code under the same (provider, purpose). Two factor codes
// are numeric; everything else is an opaque base64url string.
func (s *Service) GenerateUserToken(ctx context.Context, accountID, provider, purpose string) (string, error) {
	if s.tokenValues == nil {
		return "", s.internal(errors.New("token value store is not configured"), "generate_user_token")
	}
	if strings.TrimSpace(purpose) == "" {
		return "", NewError(ErrValidation, CodeValidation, "Token purpose is required")
	}
	if provider == "" {
		provider = DefaultTokenProvider
	}

	if _, err := s.findAccount(ctx, accountID); err != nil {
		return "", err
	}

	var (
		code string
		err  error
		ttl  = s.cfg.UserTokens.TTL
	)
	if purpose == PurposeTwoFactor {
		code, err = numericCode(s.cfg.UserTokens.NumericDigits)
		ttl = s.cfg.UserTokens.TwoFactorTTL
	} else {
		code, err = opaqueCode()
	}
	if err != nil {
		return "", s.internal(err, "generate_user_token", "account_id", accountID)
	}

	key := UserTokenKey{AccountID: accountID, Provider: provider, Name: purpose}
	if err := s.tokenValues.Set(ctx, key, code, ttl); err != nil {
		return "", s.internal(err, "store_user_token", "account_id", accountID, "purpose", purpose)
	}
	return code, nil
}

// VerifyUserToken compares code against the stored value in constant time
// and deletes it on success so a code can only be used once.
func (s *Service) VerifyUserToken(ctx context.Context, accountID, provider, purpose, code string) error {
	if s.tokenValues == nil {
		return s.internal(errors.New("token value store is not configured"), "verify_user_token")
	}
	if provider == "" {
		provider = DefaultTokenProvider
	}

	code = strings.TrimSpace(code)
	if code == "" {
		return NewError(ErrBadRequest, CodeUserToken, MsgUserTokenInvalid)
	}

	key := UserTokenKey{AccountID: accountID, Provider: provider, Name: purpose}
	stored, err := s.tokenValues.Get(ctx, key)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return NewError(ErrBadRequest, CodeUserToken, MsgUserTokenInvalid, "account_id", accountID, "purpose", purpose)
		}
		return s.internal(err, "load_user_token", "account_id", accountID, "purpose", purpose)
	}

	if subtle.ConstantTimeCompare([]byte(stored), []byte(code)) != 1 {
		return NewError(ErrBadRequest, CodeUserToken, MsgUserTokenInvalid, "account_id", accountID, "purpose", purpose)
	}

	if err := s.tokenValues.Delete(ctx, key); err != nil {
		return s.internal(err, "consume_user_token", "account_id", accountID, "purpose", purpose)
	}
	return nil
}

// ConfirmEmail consumes an email confirmation code and marks the email
// confirmed.
func (s *Service) ConfirmEmail(ctx context.Context, accountID, code string) (*Account, error) {
	if err := s.VerifyUserToken(ctx, accountID, DefaultTokenProvider, PurposeEmailConfirmation, code); err != nil {
		return nil, err
	}

	var account *Account
	err := s.tx.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var err error
		account, err = s.lookupAccount(ctx, tx, accountID)
		if err != nil {
			return err
		}
		if account.EmailConfirmed {
			return nil
		}

		account.EmailConfirmed = true
		account.ConcurrencyStamp = NewID()
		if err := s.accounts.Update(ctx, tx, account, "email_confirmed", "concurrency_stamp"); err != nil {
			return s.internal(err, "confirm_email", "account_id", accountID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	RecordActivity(ctx, s.events, s.logger, ActivityEvent{
		Type:      ActivityEmailConfirmed,
		AccountID: account.ID,
		Email:     account.Email,
	})
	return account, nil
}

// ResetPassword consumes a reset code, stores the new password hash, rotates
// the stamps and clears any lockout.
func (s *Service) ResetPassword(ctx context.Context, accountID, code, newPassword string) (*Account, error) {
	if newPassword == "" {
		return nil, NewError(ErrValidation, CodeValidation, MsgPasswordRequired)
	}

	if err := s.VerifyUserToken(ctx, accountID, DefaultTokenProvider, PurposePasswordReset, code); err != nil {
		return nil, err
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return nil, s.internal(err, "hash_password", "account_id", accountID)
	}

	var account *Account
	err = s.tx.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var err error
		account, err = s.lookupAccount(ctx, tx, accountID)
		if err != nil {
			return err
		}

		account.PasswordHash = hash
		account.RotateStamps()
		account.AccessFailedCount = 0
		account.LockoutEnd = nil

		if err := s.accounts.Update(ctx, tx, account,
			"password_hash",
			"security_stamp",
			"concurrency_stamp",
			"access_failed_count",
			"lockout_end",
		); err != nil {
			return s.internal(err, "reset_password", "account_id", accountID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	RecordActivity(ctx, s.events, s.logger, ActivityEvent{
		Type:      ActivityPasswordReset,
		AccountID: account.ID,
		Email:     account.Email,
	})
	return account, nil
}

// RequestEmailConfirmation issues a confirmation code and hands it to the
// activity sink for delivery.
func (s *Service) RequestEmailConfirmation(ctx context.Context, accountID string) error {
	account, err := s.findAccount(ctx, accountID)
	if err != nil {
		return err
	}
	if account.EmailConfirmed {
		return NewError(ErrBadRequest, CodeValidation, MsgEmailAlreadyConfirmed, "account_id", accountID)
	}
	if account.Email == "" {
		return NewError(ErrBadRequest, CodeValidation, MsgInvalidEmail, "account_id", accountID)
	}

	code, err := s.GenerateUserToken(ctx, account.ID, DefaultTokenProvider, PurposeEmailConfirmation)
	if err != nil {
		return err
	}

	RecordActivity(ctx, s.events, s.logger, ActivityEvent{
		Type:      ActivityConfirmationSent,
		AccountID: account.ID,
		Email:     account.Email,
		Metadata:  map[string]any{"code": code},
	})
	return nil
}

// RequestPasswordReset issues a reset code for the account behind identifier
// and hands it to the activity sink for delivery. Unknown identifiers succeed
// silently so callers cannot tell which accounts exist.
func (s *Service) RequestPasswordReset(ctx context.Context, identifier string) error {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return NewError(ErrValidation, CodeValidation, MsgEmailOrUsernameRequired)
	}

	var account *Account
	err := s.tx.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var err error
		account, err = s.findByIdentifier(ctx, tx, identifier)
		return err
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			s.logger.Debug("password reset for unknown identifier", "identifier", identifier)
			return nil
		}
		return err
	}

	code, err := s.GenerateUserToken(ctx, account.ID, DefaultTokenProvider, PurposePasswordReset)
	if err != nil {
		return err
	}

	RecordActivity(ctx, s.events, s.logger, ActivityEvent{
		Type:      ActivityResetRequested,
		AccountID: account.ID,
		Email:     account.Email,
		Metadata:  map[string]any{"code": code},
	})
	return nil
}

func (s *Service) findAccount(ctx context.Context, accountID string) (*Account, error) {
	var account *Account
	err := s.tx.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var err error
		account, err = s.lookupAccount(ctx, tx, accountID)
		return err
	})
	return account, err
}

func (s *Service) lookupAccount(ctx context.Context, tx bun.IDB, accountID string) (*Account, error) {
	account, err := s.accounts.FindByID(ctx, tx, accountID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, NewError(ErrNotFound, CodeNotFound, MsgAccountNotFound, "account_id", accountID)
		}
		return nil, s.internal(err, "find_by_id", "account_id", accountID)
	}
	return account, nil
}

func numericCode(digits int) (string, error) {
	if digits <= 0 {
		digits = 6
	}
	limit := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(digits)), nil)
	n, err := rand.Int(rand.Reader, limit)
	if err != nil {
		return "", err
	}
	code := n.Text(10)
	if pad := digits - len(code); pad > 0 {
		code = strings.Repeat("0", pad) + code
	}
	return code, nil
}

func opaqueCode() (string, error) {
	buf := make([]byte, opaqueTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
