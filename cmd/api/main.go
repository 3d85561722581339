package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	v1 "studychat/cmd/api/router/v1"
	cacheadapter "studychat/internal/infrastructure/cache/adapter"
	"studychat/internal/infrastructure/database"
	queueadapter "studychat/internal/infrastructure/queue/adapter"
	"studychat/internal/infrastructure/realtime"
	"studychat/internal/pkg/chat/application/dispatch"
	repoadapter "studychat/internal/pkg/chat/persistence/repository/adapter"
	repoport "studychat/internal/pkg/chat/persistence/repository/port"
	httpHandler "studychat/internal/pkg/chat/presentation/http"
	identityadapter "studychat/internal/pkg/identity/adapter"
	identity "studychat/internal/pkg/identity/port"
)

func main() {
	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: .env file not found or could not be loaded: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	deps, cleanup := buildDeps(ctx)
	cancel()
	defer cleanup()

	registry := deps.Registry

	r := gin.Default()
	r.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "OK"})
	})
	v1.RegisterRoutes(r, deps)

	runCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Run the notification workers inside the API process when a broker is
	// configured; a dedicated worker deployment can do the same wiring.
	if deps.Queue != nil {
		if srv, err := queueadapter.NewAsynqServer(); err == nil {
			dispatch.RegisterNotifyWorker(srv, registry)
			go func() {
				if err := srv.Run(runCtx); err != nil {
					log.Printf("worker server stopped: %v", err)
				}
			}()
			defer func() {
				sctx, scancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer scancel()
				_ = srv.Stop(sctx)
			}()
		} else {
			log.Printf("worker server disabled: %v", err)
		}
	}

	addr := ":" + envOr("PORT", "8080")
	httpSrv := &http.Server{Addr: addr, Handler: r}

	go func() {
		log.Printf("listening on %s", addr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("http server: %v", err)
		}
	}()

	<-runCtx.Done()
	log.Println("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Printf("http shutdown: %v", err)
	}
	registry.Close()
}

// buildDeps assembles storage, cache, queue and identity collaborators from
// the environment. DB_URL unset selects the in-memory store so the service
// runs without Postgres in development; Redis-backed cache and queue are
// optional in both modes.
func buildDeps(ctx context.Context) (httpHandler.Deps, func()) {
	var closers []func()

	var repo repoport.ChatRepository
	var directory identity.Directory
	var verifier identity.Verifier
	if os.Getenv("DB_URL") != "" {
		pool, err := database.NewPoolFromEnv(ctx)
		if err != nil {
			log.Fatalf("failed to connect to database: %v", err)
		}
		if err := database.Migrate(ctx, pool); err != nil {
			log.Fatalf("failed to run migrations: %v", err)
		}
		closers = append(closers, pool.Close)
		repo = repoadapter.NewPgChatRepository(pool)
		dir := identityadapter.NewPgDirectory(pool)
		directory = dir
		v, err := identityadapter.NewJWTVerifierFromEnv(dir)
		if err != nil {
			log.Fatalf("failed to configure token verification: %v", err)
		}
		verifier = v
	} else {
		// Tokens carry name/avatar claims; the recording verifier feeds
		// them into the in-memory directory so decoration still works.
		log.Println("DB_URL not set, using in-memory store")
		repo = repoadapter.NewMemChatRepository(nil)
		dir := identityadapter.NewMemDirectory()
		directory = dir
		v, err := identityadapter.NewJWTVerifierFromEnv(nil)
		if err != nil {
			log.Fatalf("failed to configure token verification: %v", err)
		}
		verifier = identityadapter.NewRecordingVerifier(v, dir)
	}

	deps := httpHandler.Deps{
		Repo:      repo,
		Directory: directory,
		Verifier:  verifier,
		Registry:  realtime.NewRegistry(),
	}

	if os.Getenv("REDIS_URL") != "" {
		cache, err := cacheadapter.NewRedisAdapter()
		if err != nil {
			log.Printf("cache disabled: %v", err)
		} else {
			closers = append(closers, func() { _ = cache.Close() })
			deps.Cache = cache
		}

		queue, err := queueadapter.NewAsynqClientFromEnv()
		if err != nil {
			log.Printf("queue disabled: %v", err)
		} else {
			closers = append(closers, func() { _ = queue.Close() })
			deps.Queue = queue
		}
	}

	return deps, func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
}

func envOr(name, fallback string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return fallback
}
