package main

import (
	"context"
	"errors"
	"fetchguard/internal/api"
	"fetchguard/internal/backends"
	"fetchguard/internal/cache"
	"fetchguard/internal/orchestrator"
	"fetchguard/internal/ports"
	"fetchguard/internal/pub"
	"fetchguard/internal/session"
	"fetchguard/internal/transport"
	"fetchguard/internal/types"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
)

const (
	TokenEnvKey        = "FETCHGUARD_TOKEN"
	TokenTTLEnvKey     = "FETCHGUARD_TOKEN_TTL_MINUTES"
	UserEnvKey         = "FETCHGUARD_USER"
	defaultTokenTTLMin = 60
)

type cliFlags struct {
	configPath string
	get        string
	page       int
	limit      int
	anonymous  bool
}

func main() {
	envFile := os.Getenv("ENV_FILE")
	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil {
		log.Info("The .env file not found.")
	}

	var f cliFlags
	flag.StringVar(&f.configPath, "config", "", "path to the YAML config file")
	flag.StringVar(&f.get, "get", "", "fetch one endpoint, print the body and exit")
	flag.IntVar(&f.page, "page", 0, "with -get, fetch this page of a paginated collection")
	flag.IntVar(&f.limit, "limit", 0, "with -page, items per page (default from config)")
	flag.BoolVar(&f.anonymous, "anonymous", false, "allow requests without a session")
	flag.Parse()

	if err := run(f); err != nil {
		log.WithError(err).Fatal("fetchguard failed")
	}
}

func run(f cliFlags) error {
	cfg := types.DefaultConfig()
	if f.configPath != "" {
		var err error
		if cfg, err = types.LoadConfig(f.configPath); err != nil {
			return err
		}
	}
	if lvl, err := log.ParseLevel(cfg.LogLevel); err == nil {
		log.SetLevel(lvl)
	} else {
		log.WithField("log_level", cfg.LogLevel).Warn("unknown log level, keeping info")
	}
	log.WithField("config", cfg.String()).Info("starting fetchguard")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	codec, err := cache.NewCodec()
	if err != nil {
		return err
	}
	c := cache.NewTTL[[]byte](cfg.Cache.MaxSize, cfg.Cache.DefaultTTL())
	janitorDone := c.StartJanitor(ctx, cfg.Cache.CleanupInterval())

	guard := session.NewGuard(cfg.Session.Timeout())
	store, err := backends.SessionStoreFromEnv()
	if err != nil {
		return fmt.Errorf("session store: %w", err)
	}
	if err := establishSession(ctx, guard, store); err != nil {
		return err
	}

	limiter, err := backends.RateLimiterFromEnv()
	if err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	tr := transport.NewHTTP(cfg.BaseURL, cfg.RequestTimeout())
	opts := orchestrator.Options{
		Transport:         tr,
		Cache:             c,
		Codec:             codec,
		Session:           guard,
		AllowAnonymous:    f.anonymous,
		RateLimiter:       limiter,
		RequestsPerMinute: cfg.RateLimit.RequestsPerMinute,
		RefreshThreshold:  cfg.Session.RefreshThreshold(),
		TotalExpr:         cfg.Pagination.TotalExpr,
	}
	if cfg.Session.RefreshEndpoint != "" {
		opts.RefreshToken = orchestrator.EndpointRefresher(tr, guard, cfg.Session.RefreshEndpoint)
	}
	if cfg.AuthAlert.SNSArn != "" {
		snsClient, err := backends.SNSClientFromEnv(ctx)
		if err != nil {
			return fmt.Errorf("sns: %w", err)
		}
		host, _ := os.Hostname()
		opts.OnAuthError = pub.NewAuthAlerter(pub.NewSNS(snsClient), cfg.AuthAlert.SNSArn, host).OnAuthError
	}
	orch, err := orchestrator.New(opts)
	if err != nil {
		return err
	}

	if f.get != "" {
		err = fetchOnce(ctx, orch, f, cfg.Pagination.ItemsPerPage)
	} else {
		err = serve(ctx, orch, cfg)
	}

	stop()
	<-janitorDone
	orch.Wait()
	persistSession(guard, store)
	return err
}

// establishSession restores the session named by FETCHGUARD_USER from the store, falling back to a
// token given in FETCHGUARD_TOKEN.
func establishSession(ctx context.Context, guard *session.Guard, store ports.SessionStore) error {
	userID := os.Getenv(UserEnvKey)
	if store != nil && userID != "" {
		st, err := guard.Load(ctx, store, userID)
		switch {
		case errors.Is(err, types.ErrNotFound):
			log.WithField("user_id", userID).Info("no stored session")
		case err != nil:
			return fmt.Errorf("restore session: %w", err)
		case st == session.Valid:
			log.WithField("user_id", userID).Info("session restored")
			return nil
		default:
			log.WithFields(log.Fields{"user_id": userID, "status": st.String()}).Info("stored session is no longer valid")
		}
	}
	token := os.Getenv(TokenEnvKey)
	if token == "" {
		return nil
	}
	ttlMin := defaultTokenTTLMin
	if v := os.Getenv(TokenTTLEnvKey); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return types.Err(types.ErrInvalidConfig, err, "%s=%s", TokenTTLEnvKey, v)
		}
		ttlMin = n
	}
	guard.Store(session.Identity{UserID: userID}, token, time.Duration(ttlMin)*time.Minute)
	return nil
}

func persistSession(guard *session.Guard, store ports.SessionStore) {
	if id, ok := guard.User(); store == nil || !ok || id.UserID == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := guard.Save(ctx, store); err != nil {
		log.WithError(err).Warn("failed to persist session")
	}
}

func fetchOnce(ctx context.Context, orch *orchestrator.Orchestrator, f cliFlags, defaultLimit int) error {
	if f.page > 0 {
		limit := f.limit
		if limit <= 0 {
			limit = defaultLimit
		}
		p, err := orch.PaginatedGet(ctx, f.get, f.page, limit, true)
		if err != nil {
			return err
		}
		fmt.Println(string(p.Body))
		if p.HasTotal {
			log.WithFields(log.Fields{
				"page":        p.View.Page,
				"total_pages": p.View.TotalPages,
				"total_items": p.View.TotalItems,
				"has_next":    p.View.HasNext,
			}).Info("page fetched")
		}
		return nil
	}
	body, err := orch.CachedGet(ctx, f.get, 0, nil)
	if err != nil {
		return err
	}
	fmt.Println(string(body))
	return nil
}

func serve(ctx context.Context, orch *orchestrator.Orchestrator, cfg types.Config) error {
	if cfg.AdminPort == 0 {
		log.Info("admin server disabled, waiting for a signal")
		<-ctx.Done()
		return nil
	}
	stopCh, doneCh := api.RunServerInterruptible(cfg.AdminPort, api.NewHandler(orch, cfg.Session.RefreshThreshold()))
	select {
	case <-ctx.Done():
		log.Info("shutting down admin server")
		stopCh <- struct{}{}
		return <-doneCh
	case err := <-doneCh:
		return err
	}
}
