package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-contrib/pprof"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/openarcade/scoreboard/internal/api"
	"github.com/openarcade/scoreboard/internal/board"
	"github.com/openarcade/scoreboard/internal/event"
	"github.com/openarcade/scoreboard/internal/registry"
	"github.com/openarcade/scoreboard/internal/scoreboard"
	"github.com/openarcade/scoreboard/internal/telemetry"
	"github.com/openarcade/scoreboard/internal/upstream"
)

type Config struct {
	HTTP struct {
		Port int32

		TLS struct {
			Key  string
			Cert string
		}
	}

	Redis struct {
		Registry struct {
			Addrs  []string
			Pass   string
			Prefix string
			TTL    time.Duration
		}

		Pubsub struct {
			Addrs  []string
			Pass   string
			Prefix string
		}
	}

	Auth struct {
		ClientID     string
		ClientSecret string
		RedirectURI  string
	}

	Store struct {
		Path string
	}

	Games []string
}

type Server struct {
	c Config

	eb *event.Bus

	infra struct {
		redis struct {
			registry redis.UniversalClient
			pubsub   redis.UniversalClient
		}

		store *board.Store
	}

	service struct {
		registry   *registry.Service
		scoreboard *scoreboard.Service
	}

	http *http.Server
}

func Init(c Config) (*Server, error) {
	s := &Server{c: c}

	s.eb = event.NewBus()

	if err := s.initInfra(); err != nil {
		return nil, fmt.Errorf("server: init infra: %w", err)
	}

	if err := s.initService(); err != nil {
		return nil, fmt.Errorf("server: init service: %w", err)
	}

	s.initAPI()
	return s, nil
}

func (s *Server) initInfra() error {
	if err := s.initRedis(); err != nil {
		return fmt.Errorf("redis: %w", err)
	}

	s.infra.store = board.NewStore(s.c.Store.Path, len(s.c.Games))
	return nil
}

func (s *Server) initRedis() error {
	connect := func(addrs []string, pass string) (redis.UniversalClient, error) {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		r := redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs:    addrs,
			Password: pass,
		})

		if err := telemetry.MonitorRedis(r); err != nil {
			return nil, err
		}

		if err := r.Ping(ctx).Err(); err != nil {
			return nil, err
		}

		return r, nil
	}

	var err error
	s.infra.redis.registry, err = connect(s.c.Redis.Registry.Addrs, s.c.Redis.Registry.Pass)
	if err != nil {
		return fmt.Errorf("registry: %w", err)
	}

	s.infra.redis.pubsub, err = connect(s.c.Redis.Pubsub.Addrs, s.c.Redis.Pubsub.Pass)
	if err != nil {
		return fmt.Errorf("pubsub: %w", err)
	}

	return nil
}

func (s *Server) initService() error {
	s.service.registry = registry.NewService(registry.Config{
		Redis:  s.infra.redis.registry,
		Prefix: s.c.Redis.Registry.Prefix,
		TTL:    s.c.Redis.Registry.TTL,
	})

	var err error
	s.service.scoreboard, err = scoreboard.NewService(scoreboard.Config{
		EventBus: s.eb,
		Registry: s.service.registry,
		Verifier: upstream.NewTwitch(s.c.Auth.ClientID, s.c.Auth.ClientSecret, s.c.Auth.RedirectURI),
		Store:    s.infra.store,
		Games:    s.c.Games,
	})
	if err != nil {
		return fmt.Errorf("scoreboard: %w", err)
	}

	return nil
}

func (s *Server) initAPI() {
	e := gin.New()
	e.GET("/metrics", gin.WrapH(promhttp.Handler()))
	pprof.Register(e, "/debug/pprof")
	e.Use(gin.Recovery())

	api.New(api.Config{
		Engine:       e,
		EventBus:     s.eb,
		Scoreboard:   s.service.scoreboard,
		Redis:        s.infra.redis.pubsub,
		PubsubPrefix: s.c.Redis.Pubsub.Prefix,
	})

	s.http = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.c.HTTP.Port),
		Handler:           e,
		ReadHeaderTimeout: 60 * time.Second,
	}
}

func (s *Server) Start() {
	ctx := context.TODO()

	var eg errgroup.Group
	eg.Go(func() error {
		var err error
		if s.c.HTTP.TLS.Key != "" && s.c.HTTP.TLS.Cert != "" {
			slog.InfoContext(ctx, fmt.Sprintf("server: HTTPS listening on port %d", s.c.HTTP.Port))
			err = s.http.ListenAndServeTLS(s.c.HTTP.TLS.Cert, s.c.HTTP.TLS.Key)
		} else {
			slog.InfoContext(ctx, fmt.Sprintf("server: HTTP listening on port %d", s.c.HTTP.Port))
			err = s.http.ListenAndServe()
		}

		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	if err := eg.Wait(); err != nil {
		slog.ErrorContext(ctx, "server: shutdown with error", "error", err)
	}
}

func (s *Server) Shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.http.Shutdown(ctx); err != nil {
		slog.ErrorContext(ctx, "server: shutdown HTTP failed", "error", err)
	}

	s.eb.Stop()

	slog.InfoContext(ctx, "server: shutdown completed")
}
