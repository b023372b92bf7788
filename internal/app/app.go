package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"

	"github.com/go-chi/httplog/v2"
	"github.com/vadimbarashkov/qr-tracker/internal/adapter/qrcode"
	"github.com/vadimbarashkov/qr-tracker/internal/adapter/repository/file"
	"github.com/vadimbarashkov/qr-tracker/internal/adapter/repository/postgres"
	"github.com/vadimbarashkov/qr-tracker/internal/adapter/repository/redis"
	"github.com/vadimbarashkov/qr-tracker/internal/config"
	"github.com/vadimbarashkov/qr-tracker/internal/entity"
	"github.com/vadimbarashkov/qr-tracker/internal/shortcode"
	"github.com/vadimbarashkov/qr-tracker/internal/usecase"
	"github.com/vadimbarashkov/qr-tracker/migrations"
	"golang.org/x/sync/errgroup"

	delivery "github.com/vadimbarashkov/qr-tracker/internal/adapter/delivery/http"
	pgpkg "github.com/vadimbarashkov/qr-tracker/pkg/postgres"
	redispkg "github.com/vadimbarashkov/qr-tracker/pkg/redis"
)

type qrRepository interface {
	Exists(ctx context.Context, shortCode string) (bool, error)
	Save(ctx context.Context, qr *entity.QR) (*entity.QR, error)
	IncrementScan(ctx context.Context, shortCode string) (*entity.QR, error)
	List(ctx context.Context) ([]*entity.QR, error)
}

func newLogger(env string) *httplog.Logger {
	return httplog.NewLogger("qr-tracker", httplog.Options{
		LogLevel:       slog.LevelInfo,
		JSON:           env == config.EnvProd,
		Concise:        env != config.EnvProd,
		RequestHeaders: env != config.EnvProd,
	})
}

// newQRRepository opens the backend selected by cfg.Storage.Driver. The returned
// close function releases its connections.
func newQRRepository(ctx context.Context, cfg *config.Config, logger *slog.Logger) (qrRepository, func() error, error) {
	const op = "app.newQRRepository"

	switch cfg.Storage.Driver {
	case "", config.StorageFile:
		repo, err := file.New(cfg.Storage.Path, file.WithLogger(logger))
		if err != nil {
			return nil, nil, fmt.Errorf("%s: failed to open file storage: %w", op, err)
		}

		logger.Info("using file storage", slog.String("path", repo.Path()))

		return repo, func() error { return nil }, nil

	case config.StoragePostgres:
		if err := pgpkg.RunMigrations(migrations.FS, ".", cfg.Postgres.DSN()); err != nil {
			return nil, nil, fmt.Errorf("%s: failed to run migrations: %w", op, err)
		}

		db, err := pgpkg.New(
			ctx,
			cfg.Postgres.DSN(),
			pgpkg.WithConnMaxIdleTime(cfg.Postgres.ConnMaxIdleTime),
			pgpkg.WithConnMaxLifetime(cfg.Postgres.ConnMaxLifetime),
			pgpkg.WithMaxIdleConns(cfg.Postgres.MaxIdleConns),
			pgpkg.WithMaxOpenConns(cfg.Postgres.MaxOpenConns),
		)
		if err != nil {
			return nil, nil, fmt.Errorf("%s: failed to connect to database: %w", op, err)
		}

		logger.Info("using postgres storage", slog.String("host", cfg.Postgres.Host), slog.String("db", cfg.Postgres.DB))

		return postgres.NewQRRepository(db), db.Close, nil

	case config.StorageRedis:
		client, err := redispkg.New(
			ctx,
			cfg.Redis.Addr(),
			redispkg.WithPassword(cfg.Redis.Password),
			redispkg.WithDB(cfg.Redis.DB),
			redispkg.WithPoolSize(cfg.Redis.PoolSize),
		)
		if err != nil {
			return nil, nil, fmt.Errorf("%s: failed to connect to redis: %w", op, err)
		}

		logger.Info("using redis storage", slog.String("addr", cfg.Redis.Addr()))

		return redis.NewQRRepository(client, redis.WithKeyPrefix(cfg.Redis.KeyPrefix)), client.Close, nil

	default:
		return nil, nil, fmt.Errorf("%s: unknown storage driver %q", op, cfg.Storage.Driver)
	}
}

func Run(ctx context.Context, cfg *config.Config) error {
	const op = "app.Run"

	logger := newLogger(cfg.Env)

	qrRepo, closeRepo, err := newQRRepository(ctx, cfg, logger.Logger)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer closeRepo()

	codeGen, err := shortcode.New(cfg.ShortCodeLength)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	level, err := qrcode.ParseRecoveryLevel(cfg.QRCode.RecoveryLevel)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	renderer, err := qrcode.NewRenderer(cfg.QRCode.Size, level, qrcode.WithMargin(cfg.QRCode.Margin))
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	qrUseCase := usecase.New(cfg.BaseURL, codeGen, renderer, qrRepo)
	router := delivery.NewRouter(logger, cfg.CORS.AllowedOrigins, qrUseCase)

	server := &http.Server{
		Addr:           cfg.HTTPServer.Addr(),
		Handler:        router,
		ReadTimeout:    cfg.HTTPServer.ReadTimeout,
		WriteTimeout:   cfg.HTTPServer.WriteTimeout,
		IdleTimeout:    cfg.HTTPServer.IdleTimeout,
		MaxHeaderBytes: cfg.HTTPServer.MaxHeaderBytes,
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("server started", slog.String("addr", server.Addr), slog.String("base_url", cfg.BaseURL))

		var err error

		if cfg.HTTPServer.TLS() {
			err = server.ListenAndServeTLS(cfg.HTTPServer.CertFile, cfg.HTTPServer.KeyFile)
		} else {
			err = server.ListenAndServe()
		}

		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("%s: server error occurred: %w", op, err)
		}

		return nil
	})

	g.Go(func() error {
		<-ctx.Done()

		logger.Info("shutting down server")

		if err := server.Shutdown(context.Background()); err != nil {
			return fmt.Errorf("%s: failed to shutdown server: %w", op, err)
		}

		return nil
	})

	return g.Wait()
}
