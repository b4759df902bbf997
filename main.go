package main

import (
	"context"
	"crypto/tls"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/MicahParks/keyfunc"
	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"flowboard-api/api"
	"flowboard-api/session"
	"flowboard-api/storage"
)

func main() {
	_ = godotenv.Load()

	if dbg, err := strconv.ParseBool(os.Getenv("DEBUG")); err == nil && dbg {
		log.SetLevel(log.DebugLevel)
	}
	logger := log.New()
	logger.SetLevel(log.GetLevel())

	ctx := context.Background()

	localPath := os.Getenv("LOCAL_DB_PATH")
	if localPath == "" {
		localPath = "flowboard.db"
	}
	local, err := storage.OpenLocal(localPath, logger)
	if err != nil {
		log.Fatalf("local storage: %v", err)
	}
	defer local.Close()

	redisClient := newRedisClient()

	remoteFactory := newRemoteFactory(ctx, redisClient, logger)

	outboxCfg := session.OutboxConfig{
		BufferSize:   envInt("OUTBOX_BUFFER", 256),
		WorkerCount:  envInt("OUTBOX_WORKERS", 2),
		WriteTimeout: envDur("OUTBOX_WRITE_TIMEOUT", 30*time.Second),
		RetryInitial: envDur("OUTBOX_RETRY_INITIAL", 250*time.Millisecond),
		RetryMax:     envDur("OUTBOX_RETRY_MAX", 30*time.Second),
	}
	sess, err := session.New(ctx, local, remoteFactory, logger, outboxCfg)
	if err != nil {
		log.Fatalf("session: %v", err)
	}

	auth := newAuth()

	var deduper api.Deduper
	if redisClient != nil {
		deduper = api.NewRedisDeduper(redisClient, envDur("DEDUPER_TTL", 24*time.Hour))
	}

	e := echo.New()
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization, "Idempotency-Key"},
	}))

	api.Register(e, sess, auth, deduper, logger)

	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
		<-sig
		logger.Info("shutting down, flushing pending writes")
		sess.Flush()
		sess.Close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = e.Shutdown(shutdownCtx)
	}()

	listenAddr := ":8080"
	if val, ok := os.LookupEnv("PORT"); ok {
		listenAddr = ":" + val
	}

	e.Logger.Fatal(e.Start(listenAddr))
}

// newRemoteFactory wires the Firestore-backed remote persistence. When no
// project is configured the factory is nil and sign-in is disabled.
func newRemoteFactory(ctx context.Context, redisClient *redis.Client, logger *log.Logger) session.RemoteFactory {
	projectID := os.Getenv("FIRESTORE_PROJECT_ID")
	if projectID == "" {
		logger.Warn("FIRESTORE_PROJECT_ID not set, remote persistence disabled")
		return nil
	}
	client, err := storage.NewFirestoreClient(ctx, projectID, os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	if err != nil {
		log.Fatalf("firestore: %v", err)
	}
	cacheTTL := envDur("REMOTE_CACHE_TTL", 5*time.Minute)
	return func(userID string) (storage.Backend, session.ProfileStore, error) {
		remote := storage.NewRemote(client, userID)
		var backend storage.Backend = remote
		if redisClient != nil {
			backend = storage.NewCache(remote, redisClient, userID, cacheTTL)
		}
		return backend, remote, nil
	}
}

func newAuth() *api.Auth {
	if os.Getenv("AUTH_TEST_MODE") == "1" {
		return api.NewAuth(nil, "", "")
	}
	jwtAudience := os.Getenv("AUTH_AUDIENCE")
	domain := os.Getenv("AUTH_DOMAIN")
	if jwtAudience == "" || domain == "" {
		log.Fatal("missing auth config")
	}
	jwksURL := fmt.Sprintf("https://%s/.well-known/jwks.json", domain)
	jwks, err := keyfunc.Get(jwksURL, keyfunc.Options{})
	if err != nil {
		log.Fatalf("jwks: %v", err)
	}
	return api.NewAuth(jwks, jwtAudience, "https://"+domain+"/")
}

// newRedisClient parses either a redis URL or an Azure-style comma separated
// connection string. Redis is optional; both the deduper and the remote read
// cache degrade gracefully without it.
func newRedisClient() *redis.Client {
	redisConn := os.Getenv("REDIS_CONNECTION_STRING")
	if redisConn == "" {
		return nil
	}
	redisOpts, err := redis.ParseURL(redisConn)
	if err != nil {
		parts := strings.Split(redisConn, ",")
		redisOpts = &redis.Options{Addr: parts[0]}
		for _, p := range parts[1:] {
			kv := strings.SplitN(p, "=", 2)
			if len(kv) != 2 {
				continue
			}
			switch strings.ToLower(kv[0]) {
			case "password":
				redisOpts.Password = kv[1]
			case "ssl":
				if strings.ToLower(kv[1]) == "true" {
					redisOpts.TLSConfig = &tls.Config{}
				}
			}
		}
	}
	return redis.NewClient(redisOpts)
}

func envInt(name string, def int) int {
	if v := os.Getenv(name); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			log.Fatalf("invalid %s: %v", name, err)
		}
		return n
	}
	return def
}

func envDur(name string, def time.Duration) time.Duration {
	if v := os.Getenv(name); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			log.Fatalf("invalid %s: %v", name, err)
		}
		return d
	}
	return def
}
