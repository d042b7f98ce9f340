package social

import (
	"net/http"

	"github.com/goliatone/go-router"

	identity "github.com/goliatone/go-identity"
	"github.com/goliatone/go-identity/middleware/gate"
)

// RouteRegistrar is the subset of router.Router the controller mounts on.
type RouteRegistrar interface {
	Get(path string, handler router.HandlerFunc, mw ...router.MiddlewareFunc) router.RouteInfo
	Post(path string, handler router.HandlerFunc, mw ...router.MiddlewareFunc) router.RouteInfo
	Delete(path string, handler router.HandlerFunc, mw ...router.MiddlewareFunc) router.RouteInfo
}

// HTTPController handles provider login and account linking routes.
type HTTPController struct {
	linker *Linker
	config HTTPConfig
}

// HTTPConfig configures the HTTP controller.
type HTTPConfig struct {
	// Verifier turns provider credentials into profiles. Without one the
	// login and link routes are not mounted.
	Verifier ProfileVerifier

	// CookieName stores the issued token when set
	CookieName string

	// CookieSecure sets the Secure flag on cookies
	CookieSecure bool

	// ErrorHandler renders errors (default: gate.DefaultErrorHandler)
	ErrorHandler router.ErrorHandler
}

// NewHTTPController creates a new social HTTP controller.
func NewHTTPController(linker *Linker, cfg HTTPConfig) *HTTPController {
	if cfg.ErrorHandler == nil {
		cfg.ErrorHandler = gate.DefaultErrorHandler
	}

	return &HTTPController{
		linker: linker,
		config: cfg,
	}
}

// RegisterRoutes mounts the routes on group. protect guards the routes acting
// on the signed in account. Login and link need a configured verifier.
func (c *HTTPController) RegisterRoutes(group RouteRegistrar, protect router.MiddlewareFunc) {
	group.Get("/accounts", c.ListAccounts, protect).SetName("social.accounts.get")
	group.Delete("/:provider", c.UnlinkAccount, protect).SetName("social.unlink.delete")

	if c.config.Verifier == nil {
		return
	}
	group.Post("/:provider/login", c.Login).SetName("social.login.post")
	group.Post("/:provider/link", c.LinkAccount, protect).SetName("social.link.post")
}

// Login verifies the credential with the provider named in the path, then
// resolves or creates the account behind the verified profile.
func (c *HTTPController) Login(ctx router.Context) error {
	cred := Credential{}
	if err := ctx.Bind(&cred); err != nil {
		return c.config.ErrorHandler(ctx, badPayload())
	}

	profile, err := verifyProfile(ctx.Context(), c.config.Verifier, ctx.Param("provider"), cred)
	if err != nil {
		return c.config.ErrorHandler(ctx, err)
	}

	result, err := c.linker.LoginOrCreate(ctx.Context(), profile)
	if err != nil {
		return c.config.ErrorHandler(ctx, err)
	}

	if c.config.CookieName != "" {
		ctx.Cookie(&router.Cookie{
			Name:     c.config.CookieName,
			Value:    result.Token,
			HTTPOnly: true,
			Secure:   c.config.CookieSecure,
		})
	}

	status := http.StatusOK
	if result.Created {
		status = http.StatusCreated
	}
	return ctx.JSON(status, map[string]any{
		"message":  identity.MsgLoggedIn,
		"token":    result.Token,
		"created":  result.Created,
		"linked":   result.Linked,
		"roles":    result.Claims.Roles,
		"policies": result.Claims.Policies,
	})
}

// ListAccounts returns the provider logins of the signed in account.
func (c *HTTPController) ListAccounts(ctx router.Context) error {
	principal, ok := gate.PrincipalFromContext(ctx)
	if !ok {
		return c.config.ErrorHandler(ctx, gate.Unauthenticated())
	}

	logins, err := c.linker.Logins(ctx.Context(), principal.Subject)
	if err != nil {
		return c.config.ErrorHandler(ctx, err)
	}
	return ctx.JSON(http.StatusOK, map[string]any{"accounts": logins})
}

// LinkAccount verifies the credential with the provider named in the path
// and links the verified identity to the signed in account.
func (c *HTTPController) LinkAccount(ctx router.Context) error {
	principal, ok := gate.PrincipalFromContext(ctx)
	if !ok {
		return c.config.ErrorHandler(ctx, gate.Unauthenticated())
	}

	cred := Credential{}
	if err := ctx.Bind(&cred); err != nil {
		return c.config.ErrorHandler(ctx, badPayload())
	}

	profile, err := verifyProfile(ctx.Context(), c.config.Verifier, ctx.Param("provider"), cred)
	if err != nil {
		return c.config.ErrorHandler(ctx, err)
	}

	login, err := c.linker.LinkProvider(ctx.Context(), principal.Subject, profile)
	if err != nil {
		return c.config.ErrorHandler(ctx, err)
	}

	return ctx.JSON(http.StatusCreated, map[string]any{
		"message": identity.MsgProviderLinked,
		"account": login,
	})
}

// UnlinkAccount removes the provider named in the path.
func (c *HTTPController) UnlinkAccount(ctx router.Context) error {
	principal, ok := gate.PrincipalFromContext(ctx)
	if !ok {
		return c.config.ErrorHandler(ctx, gate.Unauthenticated())
	}

	if err := c.linker.UnlinkProvider(ctx.Context(), principal.Subject, ctx.Param("provider")); err != nil {
		return c.config.ErrorHandler(ctx, err)
	}

	return ctx.JSON(http.StatusOK, map[string]any{"message": identity.MsgProviderUnlinked})
}

func badPayload() error {
	return identity.NewError(identity.ErrBadRequest, TextCodeInvalidCredential, "Invalid request payload")
}
