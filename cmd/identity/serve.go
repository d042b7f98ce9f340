package main

import (
	"context"
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/csrf"
	"github.com/goliatone/go-router"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/samber/oops"
	"github.com/spf13/cobra"

	identity "github.com/goliatone/go-identity"
	"github.com/goliatone/go-identity/httpapi"
	"github.com/goliatone/go-identity/middleware/gate"
	"github.com/goliatone/go-identity/repository"
	"github.com/goliatone/go-identity/sinks"
	"github.com/goliatone/go-identity/social"
	"github.com/goliatone/go-identity/tokenstore"
)

// AdminRole guards the claims inspection route.
const AdminRole = "admin"

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	var migrate bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the identity HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := loadRuntime()
			if err != nil {
				return err
			}

			srv, err := newServer(cmd.Context(), cfg, logger, prometheus.NewRegistry(), migrate)
			if err != nil {
				return err
			}
			defer func() {
				if err := srv.Close(); err != nil {
					logger.Warn("shutdown", "error", err)
				}
			}()

			logger.Info("listening", "addr", cfg.HTTP.Addr)
			return srv.app.Listen(cfg.HTTP.Addr)
		},
	}

	cmd.Flags().BoolVar(&migrate, "migrate", false, "create missing tables before serving")
	return cmd
}

type server struct {
	app     *fiber.App
	service *identity.Service
	manager *repository.Manager
	closers []func() error
}

// Close releases every backend opened by newServer, last opened first.
func (s *server) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func newServer(ctx context.Context, cfg identity.Config, logger identity.Logger, reg *prometheus.Registry, migrate bool) (*server, error) {
	srv := &server{}
	fail := func(err error) (*server, error) {
		_ = srv.Close()
		return nil, err
	}

	db, err := repository.Open(cfg.Database, logger)
	if err != nil {
		return nil, err
	}
	srv.closers = append(srv.closers, db.Close)

	if migrate {
		if err := repository.CreateSchema(ctx, db); err != nil {
			return fail(oops.Code("MIGRATION_FAILED").Wrapf(err, "create schema"))
		}
	}

	manager := repository.NewManager(db)
	if err := manager.Validate(); err != nil {
		return fail(oops.Code("REPOSITORY_INCOMPLETE").Wrapf(err, "repository manager"))
	}
	srv.manager = manager

	var tokenValues identity.TokenValueStore = manager.UserTokens()
	if cfg.Redis.Addr != "" {
		store, err := tokenstore.Open(ctx, cfg.Redis)
		if err != nil {
			return fail(err)
		}
		srv.closers = append(srv.closers, store.Close)
		tokenValues = store
	}

	metrics, err := sinks.NewMetricsSink(reg)
	if err != nil {
		return fail(err)
	}
	events := sinks.Multi{metrics}
	if cfg.AMQP.URL != "" {
		ch, closeAMQP, err := sinks.DialAMQP(cfg.AMQP.URL, cfg.AMQP.Exchange)
		if err != nil {
			return fail(err)
		}
		srv.closers = append(srv.closers, closeAMQP)
		events = append(events, sinks.NewAMQPSink(ch, sinks.WithExchange(cfg.AMQP.Exchange), sinks.WithNormalizedBody()))
	}

	codec, err := identity.NewTokenCodec(cfg.Token, identity.WithCodecLogger(logger))
	if err != nil {
		return fail(err)
	}

	svc, err := identity.NewService(cfg, identity.Dependencies{
		Transactor:  manager,
		Accounts:    manager.Accounts(),
		RoleClaims:  manager.Roles(),
		TokenValues: tokenValues,
		Hasher:      identity.NewBcryptHasher(cfg.Password.Cost),
		Codec:       codec,
		Events:      events,
		Logger:      logger,
	})
	if err != nil {
		return fail(err)
	}
	srv.service = svc

	// Provider profiles may only claim an existing account through an email
	// the provider has verified.
	linker, err := social.NewLinker(svc, manager.ExternalLogins(), social.WithOptions(social.Options{
		AllowSignup:          true,
		AllowEmailLinking:    true,
		RequireVerifiedEmail: true,
	}))
	if err != nil {
		return fail(err)
	}

	srv.app = buildApp(cfg, logger, svc, linker, reg)
	return srv, nil
}

func buildApp(cfg identity.Config, logger identity.Logger, svc *identity.Service, linker *social.Linker, reg *prometheus.Registry) *fiber.App {
	lookup := tokenLookup(cfg.HTTP)

	var app *fiber.App
	srv := router.NewFiberAdapter(func(*fiber.App) *fiber.App {
		app = fiber.New(fiber.Config{
			AppName:               "identity",
			DisableStartupMessage: true,
			ErrorHandler:          gate.FiberErrorHandler,
		})
		// Cookie sessions need a csrf token on unsafe methods.
		if strings.HasPrefix(lookup, "cookie:") {
			app.Use(csrf.New())
		}
		return app
	})
	r := srv.Router()

	protect := gate.New(gate.Config{
		Verifier:    svc.Codec(),
		TokenLookup: lookup,
		Logger:      logger,
	})

	httpapi.RegisterAuthRoutes(r.Group("/auth"), httpapi.NewAuthController(svc, httpapi.WithAuthLogger(logger)), protect)
	// No provider verifier is configured here, so only the routes acting on
	// the signed in account are mounted.
	social.NewHTTPController(linker, social.HTTPConfig{}).RegisterRoutes(r.Group("/auth/social"), protect)

	adminGate := gate.New(gate.Config{
		Verifier:     svc.Codec(),
		Authorizer:   svc,
		Requirements: identity.Requirements{Roles: []string{AdminRole}},
		TokenLookup:  lookup,
		Logger:       logger,
	})
	r.Get("/admin/accounts/:id/claims", func(ctx router.Context) error {
		resolved, err := svc.ResolveClaims(ctx.Context(), ctx.Param("id"))
		if err != nil {
			return gate.DefaultErrorHandler(ctx, err)
		}
		return ctx.JSON(fiber.StatusOK, map[string]any{
			"roles":    resolved.Roles,
			"policies": resolved.Policies,
		})
	}, adminGate).SetName("admin.claims.get")

	app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))
	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusNoContent)
	})

	return app
}

func tokenLookup(cfg identity.HTTPConfig) string {
	source := strings.ToLower(strings.TrimSpace(cfg.TokenSource))
	if source == "" {
		return gate.DefaultTokenLookup
	}
	key := strings.TrimSpace(cfg.TokenKey)
	if key == "" {
		key = router.HeaderAuthorization
	}
	return source + ":" + key
}
