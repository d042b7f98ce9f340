package gate

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/goliatone/go-router"

	identity "github.com/goliatone/go-identity"
)

const (
	DefaultContextKey  = "principal"
	DefaultTokenLookup = "header:" + router.HeaderAuthorization
	DefaultAuthScheme  = "Bearer"
)

// Verifier turns a raw bearer token into a principal. *identity.TokenCodec
// implements it.
type Verifier interface {
	VerifyPrincipal(token string) (*identity.Principal, error)
}

// VerifierFunc adapts a function to Verifier.
type VerifierFunc func(token string) (*identity.Principal, error)

func (f VerifierFunc) VerifyPrincipal(token string) (*identity.Principal, error) {
	return f(token)
}

// LiveAuthorizer re-resolves a principal's roles and policies before checking
// requirements. *identity.Service implements it.
type LiveAuthorizer interface {
	AuthorizeLive(ctx context.Context, principal *identity.Principal, req identity.Requirements) error
}

// ValidationListener runs after a token verifies and before the requirements
// are checked. Returning an error rejects the request.
type ValidationListener func(ctx router.Context, principal *identity.Principal) error

type Config struct {
	// Filter skips the gate when it returns true.
	Filter         func(router.Context) bool
	SuccessHandler router.HandlerFunc
	ErrorHandler   router.ErrorHandler
	Verifier       Verifier
	// Authorizer, when set, checks Requirements against roles and policies
	// loaded from storage instead of the token's copy.
	Authorizer LiveAuthorizer
	// ContextKey names the router local holding the principal.
	ContextKey string
	// TokenLookup is "<source>:<name>" with source header, cookie or query.
	TokenLookup string
	// AuthScheme is stripped from header tokens when present.
	AuthScheme          string
	Requirements        identity.Requirements
	ValidationListeners []ValidationListener
	Logger              identity.Logger
}

// New returns the authentication gate. It panics on an invalid configuration.
func New(config ...Config) router.MiddlewareFunc {
	cfg := GetDefaultConfig(config...)
	extractor, err := NewExtractor(cfg.TokenLookup, cfg.AuthScheme)
	if err != nil {
		panic("GATE: " + err.Error())
	}

	return func(hf router.HandlerFunc) router.HandlerFunc {
		return func(ctx router.Context) error {
			if cfg.Filter != nil && cfg.Filter(ctx) {
				return ctx.Next()
			}

			raw := extractor(ctx)
			if raw == "" {
				return cfg.ErrorHandler(ctx, Unauthenticated())
			}

			principal, err := cfg.Verifier.VerifyPrincipal(raw)
			if err != nil {
				cfg.Logger.Debug("gate rejected token", "path", ctx.Path(), "error", err)
				return cfg.ErrorHandler(ctx, err)
			}

			for _, listener := range cfg.ValidationListeners {
				if listener == nil {
					continue
				}
				if err := listener(ctx, principal); err != nil {
					return cfg.ErrorHandler(ctx, err)
				}
			}

			if cfg.Authorizer != nil {
				err = cfg.Authorizer.AuthorizeLive(ctx.Context(), principal, cfg.Requirements)
			} else {
				err = identity.Authorize(principal, cfg.Requirements)
			}
			if err != nil {
				return cfg.ErrorHandler(ctx, err)
			}

			ctx.Locals(cfg.ContextKey, principal)
			ctx.SetContext(identity.WithPrincipal(ctx.Context(), principal))

			return cfg.SuccessHandler(ctx)
		}
	}
}

// Require checks req against the principal attached by the gate. Use it on
// routes behind a shared gate with different requirements.
func Require(req identity.Requirements, handlers ...router.ErrorHandler) router.MiddlewareFunc {
	errorHandler := pickErrorHandler(handlers)
	return func(hf router.HandlerFunc) router.HandlerFunc {
		return func(ctx router.Context) error {
			principal, _ := PrincipalFromContext(ctx)
			if err := identity.Authorize(principal, req); err != nil {
				return errorHandler(ctx, err)
			}
			return ctx.Next()
		}
	}
}

// RequireLive is Require with roles and policies re-resolved from storage on
// every request.
func RequireLive(authorizer LiveAuthorizer, req identity.Requirements, handlers ...router.ErrorHandler) router.MiddlewareFunc {
	errorHandler := pickErrorHandler(handlers)
	return func(hf router.HandlerFunc) router.HandlerFunc {
		return func(ctx router.Context) error {
			principal, _ := PrincipalFromContext(ctx)
			if err := authorizer.AuthorizeLive(ctx.Context(), principal, req); err != nil {
				return errorHandler(ctx, err)
			}
			return ctx.Next()
		}
	}
}

// PrincipalFromContext returns the principal attached by the gate.
func PrincipalFromContext(ctx router.Context) (*identity.Principal, bool) {
	if principal, ok := ctx.Locals(DefaultContextKey).(*identity.Principal); ok && principal != nil {
		return principal, true
	}
	return identity.PrincipalFromContext(ctx.Context())
}

// DefaultErrorHandler renders err as {"error": ..., "code": ...} with the
// status its kind maps to. Internal details never reach the client.
func DefaultErrorHandler(ctx router.Context, err error) error {
	return ctx.JSON(identity.HTTPStatus(err), map[string]any{
		"error": identity.PublicMessage(err),
		"code":  identity.ErrorCode(err),
	})
}

// FiberErrorHandler is the fallback for errors that reach the fiber app
// behind the router adapter. Errors raised by fiber itself (404 for unknown
// routes, 403 from csrf) keep their status and message.
func FiberErrorHandler(c *fiber.Ctx, err error) error {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return c.Status(fe.Code).JSON(fiber.Map{"error": fe.Message})
	}
	return c.Status(identity.HTTPStatus(err)).JSON(fiber.Map{
		"error": identity.PublicMessage(err),
		"code":  identity.ErrorCode(err),
	})
}

func GetDefaultConfig(config ...Config) (cfg Config) {
	if len(config) > 0 {
		cfg = config[0]
	}

	if cfg.SuccessHandler == nil {
		cfg.SuccessHandler = func(ctx router.Context) error {
			return ctx.Next()
		}
	}

	if cfg.ErrorHandler == nil {
		cfg.ErrorHandler = DefaultErrorHandler
	}

	if cfg.Verifier == nil {
		panic("GATE: middleware configuration: Verifier is required.")
	}

	if cfg.ContextKey == "" {
		cfg.ContextKey = DefaultContextKey
	}

	if cfg.TokenLookup == "" {
		cfg.TokenLookup = DefaultTokenLookup
	}

	if cfg.AuthScheme == "" {
		cfg.AuthScheme = DefaultAuthScheme
	}

	if cfg.Logger == nil {
		cfg.Logger = identity.NopLogger()
	}

	return cfg
}

func pickErrorHandler(handlers []router.ErrorHandler) router.ErrorHandler {
	if len(handlers) > 0 && handlers[0] != nil {
		return handlers[0]
	}
	return DefaultErrorHandler
}

// Extractor reads the raw token from a request, returning "" when absent.
type Extractor func(ctx router.Context) string

// NewExtractor parses a lookup of the form "header:Authorization",
// "cookie:jwt" or "query:token". Exactly one source is allowed.
func NewExtractor(lookup, authScheme string) (Extractor, error) {
	source, name, ok := strings.Cut(strings.TrimSpace(lookup), ":")
	source = strings.ToLower(strings.TrimSpace(source))
	name = strings.TrimSpace(name)
	if !ok || name == "" || strings.Contains(name, ",") {
		return nil, fmt.Errorf("invalid token lookup %q", lookup)
	}

	switch source {
	case "header":
		return fromHeader(name, authScheme), nil
	case "cookie":
		return func(ctx router.Context) string {
			return strings.TrimSpace(ctx.Cookies(name))
		}, nil
	case "query":
		return func(ctx router.Context) string {
			return strings.TrimSpace(ctx.Query(name, ""))
		}, nil
	default:
		return nil, fmt.Errorf("unsupported token source %q", source)
	}
}

func fromHeader(header, authScheme string) Extractor {
	prefix := strings.TrimSpace(authScheme) + " "
	return func(ctx router.Context) string {
		value := strings.TrimSpace(ctx.Header(header))
		if len(value) >= len(prefix) && strings.EqualFold(value[:len(prefix)], prefix) {
			value = strings.TrimSpace(value[len(prefix):])
		}
		return value
	}
}

// Unauthenticated is the error the gate reports for a missing token.
func Unauthenticated() error {
	return identity.NewError(identity.ErrUnauthenticated, identity.CodeTokenMissing, identity.MsgTokenMissing)
}
