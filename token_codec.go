package identity

import (
	"crypto/ed25519"
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/samber/oops"
)

// IssueOptions carries the optional registered claims applied at issue time.
// A zero Expiry issues a token without exp.
type IssueOptions struct {
	Audience string
	Issuer   string
	Expiry   time.Duration
	Now      time.Time
}

// VerifyOptions carries the checks applied at verify time. Empty Audience or
// Issuer disables the matching check.
type VerifyOptions struct {
	Audience       string
	Issuer         string
	ClockTolerance time.Duration
	Now            func() time.Time
}

// IssueToken signs claims with an Ed25519 private key. Blank roles and
// policies are dropped, and both keys are left out of the payload when
// nothing remains.
func IssueToken(claims TokenClaims, key ed25519.PrivateKey, opts IssueOptions) (string, error) {
	if len(key) != ed25519.PrivateKeySize {
		return "", oops.Code(CodeInternal).Errorf("signing key is not configured")
	}

	claims.Subject = strings.TrimSpace(claims.Subject)
	if claims.Subject == "" {
		return "", NewError(ErrValidation, CodeValidation, "Token subject is required")
	}

	now := opts.Now
	if now.IsZero() {
		now = time.Now()
	}

	claims.Roles = compactStrings(claims.Roles)
	claims.Policies = compactStrings(claims.Policies)
	if opts.Issuer != "" {
		claims.Issuer = opts.Issuer
	}
	if opts.Audience != "" {
		claims.Audience = jwt.ClaimStrings{opts.Audience}
	}
	if claims.IssuedAt == nil {
		claims.IssuedAt = jwt.NewNumericDate(now)
	}
	if opts.Expiry > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(opts.Expiry))
	}
	if claims.ID == "" {
		claims.ID = uuid.NewString()
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims).SignedString(key)
	if err != nil {
		return "", oops.Code(CodeInternal).With("sub", claims.Subject).Wrapf(err, "sign token")
	}
	return signed, nil
}

// VerifyToken parses and validates token against an Ed25519 public key.
// Every failure is reported as ErrUnauthenticated carrying only the generic
// public message; the cause stays reachable for logging.
func VerifyToken(token string, key ed25519.PublicKey, opts VerifyOptions) (*TokenClaims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, NewError(ErrUnauthenticated, CodeTokenMissing, MsgTokenMissing)
	}

	parserOpts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodEdDSA.Alg()}),
	}
	if opts.Issuer != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(opts.Issuer))
	}
	if opts.Audience != "" {
		parserOpts = append(parserOpts, jwt.WithAudience(opts.Audience))
	}
	if opts.ClockTolerance > 0 {
		parserOpts = append(parserOpts, jwt.WithLeeway(opts.ClockTolerance))
	}
	if opts.Now != nil {
		parserOpts = append(parserOpts, jwt.WithTimeFunc(opts.Now))
	}

	claims := &TokenClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return key, nil
	}, parserOpts...)
	if err != nil {
		return nil, invalidToken(err)
	}
	if !parsed.Valid {
		return nil, invalidToken(errors.New("token marked invalid"))
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return nil, invalidToken(errors.New("token has no subject"))
	}

	return claims, nil
}

func invalidToken(cause error) error {
	return oops.Code(CodeTokenInvalid).
		Public(MsgTokenInvalid).
		Wrapf(errors.Join(ErrUnauthenticated, cause), "%s", MsgTokenInvalid)
}

// TokenCodec binds key material and defaults read from configuration.
type TokenCodec struct {
	signingKey      ed25519.PrivateKey
	verificationKey ed25519.PublicKey
	issuer          string
	audience        string
	ttl             time.Duration
	clockTolerance  time.Duration
	now             func() time.Time
	logger          Logger
}

// CodecOption customizes a TokenCodec.
type CodecOption func(*TokenCodec)

// WithCodecLogger sets the logger used for verification diagnostics.
func WithCodecLogger(l Logger) CodecOption {
	return func(c *TokenCodec) {
		c.logger = normalizeLogger(l)
	}
}

// WithCodecClock overrides the time source.
func WithCodecClock(now func() time.Time) CodecOption {
	return func(c *TokenCodec) {
		if now != nil {
			c.now = now
		}
	}
}

// NewTokenCodec decodes the configured keys. A configured key that does not
// decode is a startup error. When only the private key is given the public
// key is derived from it; a codec without a private key can only verify.
func NewTokenCodec(cfg TokenConfig, opts ...CodecOption) (*TokenCodec, error) {
	c := &TokenCodec{
		issuer:         cfg.Issuer,
		audience:       cfg.Audience,
		ttl:            cfg.TTL,
		clockTolerance: cfg.ClockTolerance,
		now:            time.Now,
		logger:         NopLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}

	if strings.TrimSpace(cfg.PrivateKey) != "" {
		priv, err := ParseSigningKey(cfg.PrivateKey)
		if err != nil {
			return nil, err
		}
		c.signingKey = priv
		c.verificationKey = priv.Public().(ed25519.PublicKey)
	}

	if strings.TrimSpace(cfg.PublicKey) != "" {
		pub, err := ParseVerificationKey(cfg.PublicKey)
		if err != nil {
			return nil, err
		}
		c.verificationKey = pub
	}

	if len(c.verificationKey) == 0 {
		return nil, oops.Code("KEY_INVALID").Errorf("token codec needs a public or private key")
	}

	return c, nil
}

// NewTokenCodecFromKeys builds a codec from already decoded keys. priv may be
// nil for a verify only codec.
func NewTokenCodecFromKeys(priv ed25519.PrivateKey, pub ed25519.PublicKey, cfg TokenConfig, opts ...CodecOption) (*TokenCodec, error) {
	if len(pub) == 0 && len(priv) == ed25519.PrivateKeySize {
		pub = priv.Public().(ed25519.PublicKey)
	}
	if len(pub) != ed25519.PublicKeySize {
		return nil, oops.Code("KEY_INVALID").Errorf("token codec needs a public or private key")
	}

	c := &TokenCodec{
		signingKey:      priv,
		verificationKey: pub,
		issuer:          cfg.Issuer,
		audience:        cfg.Audience,
		ttl:             cfg.TTL,
		clockTolerance:  cfg.ClockTolerance,
		now:             time.Now,
		logger:          NopLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// CanSign reports whether a private key is configured.
func (c *TokenCodec) CanSign() bool {
	return len(c.signingKey) == ed25519.PrivateKeySize
}

// Issue signs claims using the configured issuer, audience and ttl.
func (c *TokenCodec) Issue(claims TokenClaims) (string, error) {
	return IssueToken(claims, c.signingKey, IssueOptions{
		Audience: c.audience,
		Issuer:   c.issuer,
		Expiry:   c.ttl,
		Now:      c.now(),
	})
}

// Verify validates token and returns its claims. Failures are logged at
// debug level and reported as ErrUnauthenticated.
func (c *TokenCodec) Verify(token string) (*TokenClaims, error) {
	claims, err := VerifyToken(token, c.verificationKey, VerifyOptions{
		Audience:       c.audience,
		Issuer:         c.issuer,
		ClockTolerance: c.clockTolerance,
		Now:            c.now,
	})
	if err != nil {
		c.logger.Debug("token verification failed", "error", err)
		return nil, err
	}
	return claims, nil
}

// VerifyPrincipal validates token and maps it to a Principal.
func (c *TokenCodec) VerifyPrincipal(token string) (*Principal, error) {
	claims, err := c.Verify(token)
	if err != nil {
		return nil, err
	}
	return PrincipalFromClaims(claims), nil
}
