package identity

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/samber/oops"
	"github.com/uptrace/bun"
)

// Dependencies are the collaborators a Service needs. Events, Logger and
// TokenValues are optional.
type Dependencies struct {
	Transactor  Transactor
	Accounts    AccountStore
	RoleClaims  RoleClaimStore
	TokenValues TokenValueStore
	Hasher      PasswordHasher
	Codec       *TokenCodec
	Events      ActivitySink
	Logger      Logger
}

// Validate reports the first missing required collaborator.
func (d Dependencies) Validate() error {
	switch {
	case d.Transactor == nil:
		return oops.Code(CodeInternal).Errorf("transactor is required")
	case d.Accounts == nil:
		return oops.Code(CodeInternal).Errorf("account store is required")
	case d.RoleClaims == nil:
		return oops.Code(CodeInternal).Errorf("role claim store is required")
	case d.Hasher == nil:
		return oops.Code(CodeInternal).Errorf("password hasher is required")
	case d.Codec == nil:
		return oops.Code(CodeInternal).Errorf("token codec is required")
	}
	return nil
}

// Service is the authentication and authorization core.
type Service struct {
	tx          Transactor
	accounts    AccountStore
	tokenValues TokenValueStore
	hasher      PasswordHasher
	codec       *TokenCodec
	claims      *ClaimsAggregator
	lockout     LockoutPolicy
	events      ActivitySink
	logger      Logger
	cfg         Config
}

// ServiceOption customizes a Service.
type ServiceOption func(*Service)

// WithClock overrides the time source used by the lockout policy.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) {
		if now != nil {
			s.lockout.Now = now
		}
	}
}

// NewService wires the core. cfg supplies lockout and user token settings.
func NewService(cfg Config, deps Dependencies, opts ...ServiceOption) (*Service, error) {
	if err := deps.Validate(); err != nil {
		return nil, err
	}

	s := &Service{
		tx:          deps.Transactor,
		accounts:    deps.Accounts,
		tokenValues: deps.TokenValues,
		hasher:      deps.Hasher,
		codec:       deps.Codec,
		claims:      NewClaimsAggregator(deps.RoleClaims),
		lockout:     NewLockoutPolicy(cfg.Lockout),
		events:      normalizeActivitySink(deps.Events),
		logger:      normalizeLogger(deps.Logger),
		cfg:         cfg,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Codec exposes the token codec, used by transports to verify tokens.
func (s *Service) Codec() *TokenCodec {
	return s.codec
}

// Accounts exposes the account store to sibling packages sharing the
// transaction boundary.
func (s *Service) Accounts() AccountStore {
	return s.accounts
}

// Transactor exposes the transaction boundary.
func (s *Service) Transactor() Transactor {
	return s.tx
}

// Events exposes the activity sink.
func (s *Service) Events() ActivitySink {
	return s.events
}

// Logger exposes the configured logger.
func (s *Service) Logger() Logger {
	return s.logger
}

// Config returns the configuration the service was built with.
func (s *Service) Config() Config {
	return s.cfg
}

// Register creates a password account. The identifier conflict checks and the
// insert share one transaction.
func (s *Service) Register(ctx context.Context, input RegisterInput) (*Account, error) {
	input = input.Normalized()
	if err := input.Validate(); err != nil {
		return nil, err
	}

	hash, err := s.hasher.Hash(input.Password)
	if err != nil {
		return nil, s.internal(err, "hash_password")
	}

	var created *Account
	err = s.tx.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if err := s.ensureAvailable(ctx, tx, Normalize(input.Email), Normalize(input.Username)); err != nil {
			return err
		}

		account := &Account{
			ID:                 NewID(),
			Username:           input.Username,
			NormalizedUsername: Normalize(input.Username),
			Email:              input.Email,
			NormalizedEmail:    Normalize(input.Email),
			PhoneNumber:        input.PhoneNumber,
			PasswordHash:       hash,
			LockoutEnabled:     s.cfg.Lockout.EnabledByDefault,
		}
		account.RotateStamps()

		created, err = s.accounts.Create(ctx, tx, account)
		if err != nil {
			return s.internal(err, "create_account", "email", input.Email)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	RecordActivity(ctx, s.events, s.logger, ActivityEvent{
		Type:      ActivityAccountCreated,
		AccountID: created.ID,
		Email:     created.Email,
	})
	return created, nil
}

func (s *Service) ensureAvailable(ctx context.Context, tx bun.IDB, normalizedEmail, normalizedUsername string) error {
	if normalizedEmail != "" {
		existing, err := s.accounts.FindByNormalizedEmail(ctx, tx, normalizedEmail)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return s.internal(err, "find_by_email")
		}
		if existing != nil {
			return NewError(ErrConflict, CodeUserExists, MsgUserAlreadyExists, "field", "email")
		}
	}

	if normalizedUsername != "" {
		existing, err := s.accounts.FindByNormalizedUsername(ctx, tx, normalizedUsername)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return s.internal(err, "find_by_username")
		}
		if existing != nil {
			return NewError(ErrConflict, CodeUserExists, MsgUserAlreadyExists, "field", "username")
		}
	}
	return nil
}

// LoginInput carries an email or username and a password.
type LoginInput struct {
	Identifier string `json:"identifier"`
	Password   string `json:"password"`
}

// LoginResult is returned on a successful login.
type LoginResult struct {
	Token   string         `json:"token"`
	Account *Account       `json:"account"`
	Claims  ResolvedClaims `json:"-"`
}

// Login checks credentials, applies the lockout policy and issues a bearer
// token. A failed password check persists the failure counter before the
// ErrUnauthenticated is returned.
func (s *Service) Login(ctx context.Context, input LoginInput) (*LoginResult, error) {
	identifier := strings.TrimSpace(input.Identifier)
	if identifier == "" {
		return nil, NewError(ErrValidation, CodeValidation, MsgEmailOrUsernameRequired)
	}
	if input.Password == "" {
		return nil, NewError(ErrValidation, CodeValidation, MsgPasswordRequired)
	}

	var (
		result  *LoginResult
		failed  *Account
		locked  bool
		missing bool
	)

	err := s.tx.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		account, err := s.findByIdentifier(ctx, tx, identifier)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				missing = true
				return nil
			}
			return err
		}

		if err := s.lockout.Check(account); err != nil {
			return err
		}

		if !account.HasPassword() || !s.hasher.Compare(input.Password, account.PasswordHash) {
			cols, nowLocked := s.lockout.RegisterFailure(account)
			if len(cols) > 0 {
				if err := s.accounts.Update(ctx, tx, account, cols...); err != nil {
					return s.internal(err, "record_login_failure", "account_id", account.ID)
				}
			}
			failed = account
			locked = nowLocked
			return nil
		}

		if cols := s.lockout.RegisterSuccess(account); len(cols) > 0 {
			if err := s.accounts.Update(ctx, tx, account, cols...); err != nil {
				return s.internal(err, "reset_lockout", "account_id", account.ID)
			}
		}

		token, resolved, err := s.IssueForAccount(ctx, tx, account)
		if err != nil {
			return err
		}
		result = &LoginResult{Token: token, Account: account, Claims: resolved}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if missing {
		s.logger.Debug("login for unknown identifier", "identifier", identifier)
		return nil, NewError(ErrUnauthenticated, CodeInvalidCredential, MsgInvalidCredentials)
	}

	if failed != nil {
		RecordActivity(ctx, s.events, s.logger, ActivityEvent{
			Type:      ActivityLoginFailure,
			AccountID: failed.ID,
			Email:     failed.Email,
			Metadata:  map[string]any{"access_failed_count": failed.AccessFailedCount},
		})
		if locked {
			RecordActivity(ctx, s.events, s.logger, ActivityEvent{
				Type:      ActivityAccountLocked,
				AccountID: failed.ID,
				Email:     failed.Email,
				Metadata:  map[string]any{"lockout_end": failed.LockoutEnd},
			})
		}
		return nil, NewError(ErrUnauthenticated, CodeInvalidCredential, MsgInvalidCredentials, "account_id", failed.ID)
	}

	RecordActivity(ctx, s.events, s.logger, ActivityEvent{
		Type:      ActivityLoginSuccess,
		AccountID: result.Account.ID,
		Email:     result.Account.Email,
	})
	return result, nil
}

func (s *Service) findByIdentifier(ctx context.Context, tx bun.IDB, identifier string) (*Account, error) {
	normalized := Normalize(identifier)

	if strings.Contains(identifier, "@") {
		account, err := s.accounts.FindByNormalizedEmail(ctx, tx, normalized)
		if err == nil {
			return account, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return nil, s.internal(err, "find_by_email")
		}
	}

	account, err := s.accounts.FindByNormalizedUsername(ctx, tx, normalized)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, s.internal(err, "find_by_username")
	}
	return account, nil
}

// IssueForAccount resolves claims for account and signs a bearer token. It
// runs on the caller's transaction.
func (s *Service) IssueForAccount(ctx context.Context, tx bun.IDB, account *Account) (string, ResolvedClaims, error) {
	resolved, err := s.claims.Resolve(ctx, tx, account.ID)
	if err != nil {
		s.logger.Error("resolve claims failed", "account_id", account.ID, "error", err)
		return "", ResolvedClaims{}, err
	}

	token, err := s.codec.Issue(TokenClaims{
		Email:    account.Email,
		Roles:    resolved.Roles,
		Policies: resolved.Policies,
	}.WithSubject(account.ID))
	if err != nil {
		return "", ResolvedClaims{}, s.internal(err, "issue_token", "account_id", account.ID)
	}
	return token, resolved, nil
}

// VerifyRequestToken verifies a bearer token and returns its principal. It
// does no I/O.
func (s *Service) VerifyRequestToken(token string) (*Principal, error) {
	return s.codec.VerifyPrincipal(token)
}

// Authorize checks the roles and policies carried by the principal.
func (s *Service) Authorize(principal *Principal, req Requirements) error {
	return Authorize(principal, req)
}

// AuthorizeLive re-resolves the principal's roles and policies from storage
// before checking req.
func (s *Service) AuthorizeLive(ctx context.Context, principal *Principal, req Requirements) error {
	if principal == nil {
		return Authorize(nil, req)
	}
	if req.IsZero() {
		return nil
	}

	resolved, err := s.ResolveClaims(ctx, principal.Subject)
	if err != nil {
		return err
	}

	live := *principal
	live.Roles = resolved.Roles
	live.Policies = resolved.Policies
	return Authorize(&live, req)
}

// ResolveClaims returns the effective roles and policies of an account.
func (s *Service) ResolveClaims(ctx context.Context, accountID string) (ResolvedClaims, error) {
	var resolved ResolvedClaims
	err := s.tx.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var err error
		resolved, err = s.claims.Resolve(ctx, tx, accountID)
		return err
	})
	if err != nil {
		s.logger.Error("resolve claims failed", "account_id", accountID, "error", err)
		return ResolvedClaims{}, err
	}
	return resolved, nil
}

// internal logs and wraps a lower layer fault.
func (s *Service) internal(err error, operation string, kv ...any) error {
	if IsKind(err) || errors.Is(err, ErrInternal) {
		return err
	}
	args := append([]any{"operation", operation, "error", err}, kv...)
	s.logger.Error("identity operation failed", args...)
	return Internal(err, operation, kv...)
}
