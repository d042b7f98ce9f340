// Package httpapi exposes the identity service over JSON HTTP routes.
package httpapi

import (
	"net/http"

	"github.com/goliatone/go-router"

	identity "github.com/goliatone/go-identity"
	"github.com/goliatone/go-identity/middleware/gate"
)

type AuthControllerRoutes struct {
	Register        string
	Login           string
	Me              string
	PasswordReset   string
	EmailConfirm    string
	EmailConfirmReq string
}

// AuthController serves registration, login and the user token flows.
type AuthController struct {
	Service      *identity.Service
	Logger       identity.Logger
	Routes       *AuthControllerRoutes
	ErrorHandler router.ErrorHandler
}

type AuthControllerOption func(*AuthController) *AuthController

func WithAuthLogger(logger identity.Logger) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		if logger != nil {
			c.Logger = logger
		}
		return c
	}
}

func WithAuthRoutes(routes *AuthControllerRoutes) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		if routes != nil {
			c.Routes = routes
		}
		return c
	}
}

func NewAuthController(svc *identity.Service, opts ...AuthControllerOption) *AuthController {
	c := &AuthController{
		Service:      svc,
		Logger:       identity.NopLogger(),
		ErrorHandler: gate.DefaultErrorHandler,
		Routes: &AuthControllerRoutes{
			Register:        "/register",
			Login:           "/login",
			Me:              "/me",
			PasswordReset:   "/password-reset",
			EmailConfirm:    "/email/confirm",
			EmailConfirmReq: "/me/email/confirmation",
		},
	}

	for _, opt := range opts {
		c = opt(c)
	}

	if c.Service == nil {
		panic("Missing identity service in auth controller...")
	}

	return c
}

// RegisterAuthRoutes mounts the controller on app. protect guards the routes
// that need a principal.
func RegisterAuthRoutes[T any](app router.Router[T], c *AuthController, protect router.MiddlewareFunc) {
	app.Post(c.Routes.Register, c.RegistrationCreate).SetName("register.post")
	app.Post(c.Routes.Login, c.LoginPost).SetName("sign-in.post")
	app.Post(c.Routes.PasswordReset, c.PasswordResetPost).SetName("pwd-reset.post")
	app.Post(c.Routes.PasswordReset+"/:account_id", c.PasswordResetExecute).SetName("pwd-reset-do.post")
	app.Post(c.Routes.EmailConfirm, c.EmailConfirmPost).SetName("email-confirm.post")

	app.Get(c.Routes.Me, c.MeGet, protect).SetName("me.get")
	app.Post(c.Routes.EmailConfirmReq, c.EmailConfirmationRequest, protect).SetName("email-confirm-request.post")
}

type accountResponse struct {
	ID             string `json:"id"`
	Email          string `json:"email,omitempty"`
	Username       string `json:"username,omitempty"`
	PhoneNumber    string `json:"phone_number,omitempty"`
	EmailConfirmed bool   `json:"email_confirmed"`
}

func newAccountResponse(a *identity.Account) accountResponse {
	return accountResponse{
		ID:             a.ID,
		Email:          a.Email,
		Username:       a.Username,
		PhoneNumber:    a.PhoneNumber,
		EmailConfirmed: a.EmailConfirmed,
	}
}

func (a *AuthController) RegistrationCreate(ctx router.Context) error {
	payload := identity.RegisterInput{}
	if err := ctx.Bind(&payload); err != nil {
		return a.badPayload(ctx, err)
	}

	account, err := a.Service.Register(ctx.Context(), payload)
	if err != nil {
		return a.ErrorHandler(ctx, err)
	}

	return ctx.JSON(http.StatusCreated, map[string]any{
		"message": identity.MsgRegistered,
		"account": newAccountResponse(account),
	})
}

func (a *AuthController) LoginPost(ctx router.Context) error {
	payload := identity.LoginInput{}
	if err := ctx.Bind(&payload); err != nil {
		return a.badPayload(ctx, err)
	}

	result, err := a.Service.Login(ctx.Context(), payload)
	if err != nil {
		return a.ErrorHandler(ctx, err)
	}

	return ctx.JSON(http.StatusOK, map[string]any{
		"message":  identity.MsgLoggedIn,
		"token":    result.Token,
		"account":  newAccountResponse(result.Account),
		"roles":    result.Claims.Roles,
		"policies": result.Claims.Policies,
	})
}

func (a *AuthController) MeGet(ctx router.Context) error {
	principal, ok := gate.PrincipalFromContext(ctx)
	if !ok {
		return a.ErrorHandler(ctx, gate.Unauthenticated())
	}
	return ctx.JSON(http.StatusOK, principal)
}

type passwordResetRequest struct {
	Identifier string `json:"identifier"`
}

func (a *AuthController) PasswordResetPost(ctx router.Context) error {
	payload := passwordResetRequest{}
	if err := ctx.Bind(&payload); err != nil {
		return a.badPayload(ctx, err)
	}

	if err := a.Service.RequestPasswordReset(ctx.Context(), payload.Identifier); err != nil {
		return a.ErrorHandler(ctx, err)
	}

	return ctx.JSON(http.StatusAccepted, map[string]any{
		"message": identity.MsgResetRequested,
	})
}

type passwordResetExecute struct {
	Code     string `json:"code"`
	Password string `json:"password"`
}

func (a *AuthController) PasswordResetExecute(ctx router.Context) error {
	payload := passwordResetExecute{}
	if err := ctx.Bind(&payload); err != nil {
		return a.badPayload(ctx, err)
	}

	account, err := a.Service.ResetPassword(ctx.Context(), ctx.Param("account_id"), payload.Code, payload.Password)
	if err != nil {
		return a.ErrorHandler(ctx, err)
	}

	return ctx.JSON(http.StatusOK, map[string]any{
		"message": identity.MsgPasswordReset,
		"account": newAccountResponse(account),
	})
}

type emailConfirm struct {
	AccountID string `json:"account_id"`
	Code      string `json:"code"`
}

func (a *AuthController) EmailConfirmPost(ctx router.Context) error {
	payload := emailConfirm{}
	if err := ctx.Bind(&payload); err != nil {
		return a.badPayload(ctx, err)
	}

	account, err := a.Service.ConfirmEmail(ctx.Context(), payload.AccountID, payload.Code)
	if err != nil {
		return a.ErrorHandler(ctx, err)
	}

	return ctx.JSON(http.StatusOK, map[string]any{
		"message": identity.MsgEmailConfirmed,
		"account": newAccountResponse(account),
	})
}

func (a *AuthController) EmailConfirmationRequest(ctx router.Context) error {
	principal, ok := gate.PrincipalFromContext(ctx)
	if !ok {
		return a.ErrorHandler(ctx, gate.Unauthenticated())
	}

	if err := a.Service.RequestEmailConfirmation(ctx.Context(), principal.Subject); err != nil {
		return a.ErrorHandler(ctx, err)
	}

	return ctx.JSON(http.StatusAccepted, map[string]any{
		"message": identity.MsgConfirmationSent,
	})
}

func (a *AuthController) badPayload(ctx router.Context, err error) error {
	a.Logger.Debug("invalid request payload", "path", ctx.Path(), "error", err)
	return a.ErrorHandler(ctx, identity.NewError(identity.ErrBadRequest, identity.CodeValidation, "Invalid request payload"))
}
