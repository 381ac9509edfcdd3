// Package devstore is a local record store speaking the console's REST
// contract over SQLite or PostgreSQL, so the admin console can run without
// the hosted backend.
package devstore

import (
	"context"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.uber.org/zap"

	"labdesk/internal/auth"
	"labdesk/internal/config"
	"labdesk/internal/schema"
	"labdesk/internal/storage"
	"labdesk/internal/store"
)

// Options configures a Server.
type Options struct {
	JWTSecret   string
	TokenTTL    time.Duration
	MaxFileSize int64
	Rules       RuleSet // nil means DefaultRules
}

// Server serves the records of every registry collection.
type Server struct {
	store  *store.Store
	tables map[string]*table
	order  []string
	files  storage.FileStorage
	rules  *Rules
	opts   Options
	logger *zap.Logger
}

// New builds a server over an already migrated store.
func New(st *store.Store, reg *schema.Registry, files storage.FileStorage, logger *zap.Logger, opts Options) (*Server, error) {
	set := opts.Rules
	if set == nil {
		set = DefaultRules()
	}
	rules, err := CompileRules(set)
	if err != nil {
		return nil, err
	}
	s := &Server{
		store:  st,
		tables: make(map[string]*table),
		files:  files,
		rules:  rules,
		opts:   opts,
		logger: logger,
	}
	for _, c := range reg.All() {
		s.tables[c.Name] = newTable(c)
		s.order = append(s.order, c.Name)
	}
	return s, nil
}

// Open connects to the configured database, migrates every collection and
// returns the store ready for New.
func Open(ctx context.Context, cfg config.DatabaseConfig, reg *schema.Registry) (*store.Store, error) {
	st, err := store.New(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	if err := store.NewMigrator(st).MigrateAll(ctx, reg); err != nil {
		st.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return st, nil
}

// App builds the fiber application. Extra middleware runs before the routes.
func (s *Server) App(middleware ...fiber.Handler) *fiber.App {
	bodyLimit := 4 * 1024 * 1024
	if s.opts.MaxFileSize > 0 {
		bodyLimit = int(s.opts.MaxFileSize) + 1024*1024
	}
	app := fiber.New(fiber.Config{
		ErrorHandler:          ErrorHandler(s.logger),
		BodyLimit:             bodyLimit,
		DisableStartupMessage: true,
	})
	app.Use(recover.New(recover.Config{EnableStackTrace: true}))
	for _, mw := range middleware {
		app.Use(mw)
	}
	s.RegisterRoutes(app)
	return app
}

// RegisterRoutes registers the auth, record and file routes.
func (s *Server) RegisterRoutes(r fiber.Router) {
	r.Get("/api/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"code": fiber.StatusOK, "message": "API is healthy.", "data": fiber.Map{}})
	})

	r.Use(auth.Middleware(s.opts.JWTSecret))
	auth.RegisterAuthRoutes(r, auth.NewAuthHandler(s, s.opts.JWTSecret, s.opts.TokenTTL, s.logger))

	r.Get("/api/collections/:collection/records", s.List)
	r.Post("/api/collections/:collection/records", s.Create)
	r.Get("/api/collections/:collection/records/:id", s.View)
	r.Patch("/api/collections/:collection/records/:id", s.Update)
	r.Delete("/api/collections/:collection/records/:id", s.Delete)

	r.Get("/api/files/:collection/:id/:filename", s.ServeFile)
}
