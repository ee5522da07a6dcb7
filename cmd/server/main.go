package main

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"yakssok-api/internal/auth"
	"yakssok-api/internal/calendar"
	"yakssok-api/internal/config"
	"yakssok-api/internal/coordination"
	"yakssok-api/internal/handler"
	"yakssok-api/internal/housekeeping"
	"yakssok-api/internal/invite"
	"yakssok-api/internal/middleware"
	"yakssok-api/internal/rpc"
	"yakssok-api/internal/store"
	"yakssok-api/internal/store/memstore"
)

// backend is what both the Postgres and the in-memory store provide.
type backend interface {
	coordination.Repository
	handler.AccountStore
	handler.Pinger
	housekeeping.TokenSweeper
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	st, closeStore, err := openStore(context.Background(), cfg)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer closeStore()

	key := cfg.TokenEncryptionKey
	if key == nil {
		if key, err = auth.DeriveKey(cfg.JWTSecret); err != nil {
			log.Fatalf("token key: %v", err)
		}
	}
	sealer, err := auth.NewSealer(key)
	if err != nil {
		log.Fatalf("token key: %v", err)
	}

	google := auth.NewGoogle(cfg.GoogleClientID, cfg.GoogleClientSecret, cfg.GoogleRedirectURI,
		cfg.GoogleForcePrompt, cfg.CalendarTimeout)
	appointments := coordination.New(st,
		coordination.WithCodeGenerator(invite.Generator(cfg.InviteCodeLength)),
		coordination.WithMaxCodeAttempts(cfg.InviteCodeMaxAttempts),
	)

	rl := middleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
	defer rl.Close()

	h := handler.New(handler.Deps{
		Appointments: appointments,
		Accounts:     st,
		Google:       google,
		Sealer:       sealer,
		Calendar:     calendar.NewService(st, sealer, google, cfg.CalendarTimeZone),
		DB:           st,
		Limiter:      rl,
	}, handler.Config{
		Secret:         cfg.JWTSecret,
		AccessTTL:      cfg.AccessTokenTTL,
		RefreshTTL:     cfg.RefreshTokenTTL,
		FrontendURL:    cfg.FrontendURL,
		TrustedProxies: cfg.TrustedProxies,
	})

	// grpc
	grpcSrv, health := rpc.NewServer(appointments, cfg.JWTSecret, rl)
	lis, err := net.Listen("tcp", ":"+cfg.GRPCPort)
	if err != nil {
		log.Fatalf("listen: %v", err)
	}
	go func() {
		log.Printf("grpc on :%s", cfg.GRPCPort)
		if err := grpcSrv.Serve(lis); err != nil {
			log.Printf("grpc: %v", err)
		}
	}()

	// http
	httpSrv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           h.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Printf("http on :%s", cfg.HTTPPort)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("http: %v", err)
		}
	}()

	sweeper := housekeeping.NewSweeper(st)
	if err := sweeper.Start(cfg.TokenSweepSpec); err != nil {
		log.Fatalf("housekeeping: %v", err)
	}

	// graceful shutdown
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	<-ch
	log.Println("shutting down")

	health.Shutdown()
	sweeper.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(ctx); err != nil {
		log.Printf("http shutdown: %v", err)
	}
	grpcSrv.GracefulStop()
}

func openStore(ctx context.Context, cfg *config.Config) (backend, func(), error) {
	if cfg.UseMemoryStore() {
		log.Println("WARNING: in-memory store is for development only, data is lost on exit and every transaction copies the whole dataset")
		return memstore.New(), func() {}, nil
	}

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, err
	}
	log.Println("connected to postgres")

	st := store.New(pool)
	if err := st.Migrate(ctx); err != nil {
		pool.Close()
		return nil, nil, err
	}
	return st, pool.Close, nil
}
