package server

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/krxlab/ipo-advisor/config"
	"github.com/krxlab/ipo-advisor/internal/index"
	"github.com/krxlab/ipo-advisor/internal/retrieval"
	"github.com/krxlab/ipo-advisor/internal/store"
	"github.com/krxlab/ipo-advisor/provider"
	"github.com/krxlab/ipo-advisor/tools/webfetch"
	"github.com/krxlab/ipo-advisor/tools/websearch"
	"github.com/krxlab/ipo-advisor/tools/wiki"
)

// Run wires the application together and serves HTTP until the listener
// fails.
func Run(cfg *config.Config) error {
	e := newEcho()

	ctx := context.Background()
	baseLogger := log.New(log.Writer(), "[SERVE] ", log.LstdFlags)

	dsn, err := cfg.Storage.Postgres.DSN()
	if err != nil {
		return err
	}
	if err := Migrate("file://migrations", dsn, "up", 0); err != nil {
		baseLogger.Printf("migrations: %v", err)
	}
	st, err := store.NewWithDSN(ctx, dsn)
	if err != nil {
		return fmt.Errorf("connecting to postgres: %w", err)
	}

	llm, err := provider.New(cfg.LLM)
	if err != nil {
		return err
	}

	ix := index.New(llm)
	if err := ix.LoadCorpus(ctx, cfg.Index.CorpusPath, cfg.Index.EmbedBatch); err != nil {
		// local retrieval unavailable; external sources still serve
		baseLogger.Printf("local index load failed: %v", err)
	}
	if cfg.Index.RebuildCron != "" {
		sched := index.NewScheduler(ix, cfg.Index.CorpusPath, cfg.Index.RebuildCron, cfg.Index.EmbedBatch)
		sched.Start()
		defer close(sched.Stop)
	}

	opts := []retrieval.Option{
		retrieval.WithFetcher(webfetch.NewHTTPFetcher(cfg.Search.FetchTimeout, cfg.Search.FetchMaxChars)),
		retrieval.WithWiki(wiki.NewClient(0)),
	}
	if cfg.Search.APIKey != "" {
		searcher, err := websearch.NewSearcher(websearch.Provider(cfg.Search.Provider), cfg.Search.APIKey)
		if err != nil {
			return err
		}
		opts = append(opts, retrieval.WithSearcher(searcher))
	} else {
		baseLogger.Printf("web search disabled: search.api_key not set")
	}
	if cfg.Storage.Redis.Addr != "" {
		rdb, err := retrieval.ConnectRedis(ctx, cfg.Storage.Redis.Addr, cfg.Storage.Redis.Password, cfg.Storage.Redis.DB, cfg.Storage.Redis.Timeout)
		if err != nil {
			baseLogger.Printf("redis unavailable, retrieval cache disabled: %v", err)
		} else {
			opts = append(opts, retrieval.WithCache(retrieval.NewCache(rdb, cfg.Retrieval.CacheTTL)))
		}
	}
	gateway := retrieval.NewGateway(llm, ix, cfg.Retrieval, cfg.Search, opts...)

	api := e.Group("/api/v1")
	wh := &WorkflowHandler{Provider: llm, Retriever: gateway, MaxResults: cfg.Retrieval.MaxResults}
	wh.Register(api.Group("/workflow"))
	hh := &HistoryHandler{Store: st}
	hh.Register(api)

	return e.Start(cfg.Server.Address)
}

// newEcho builds the echo instance with the shared middleware and the unified
// JSON error handler.
func newEcho() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())

	baseLogger := log.New(log.Writer(), "[HTTP] ", log.LstdFlags)
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		code := http.StatusInternalServerError
		msg := err.Error()
		if he, ok := err.(*echo.HTTPError); ok {
			code = he.Code
			if he.Message != nil {
				msg = fmt.Sprint(he.Message)
			}
		}
		req := c.Request()
		baseLogger.Printf("%d %s %s from %s: %v", code, req.Method, req.URL.Path, c.RealIP(), err)
		if !c.Response().Committed {
			_ = c.JSON(code, map[string]interface{}{"error": msg})
		}
	}

	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders: []string{"Content-Type"},
	}))

	e.GET("/healthz", func(c echo.Context) error { return c.String(200, "ok") })
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	return e
}
