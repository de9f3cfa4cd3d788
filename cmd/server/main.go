package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/stockx/market-engine/internal/auth"
	"github.com/stockx/market-engine/internal/cache"
	"github.com/stockx/market-engine/internal/market"
	"github.com/stockx/market-engine/internal/metrics"
	"github.com/stockx/market-engine/internal/pricegen"
	"github.com/stockx/market-engine/internal/seed"
	"github.com/stockx/market-engine/internal/store"
	"github.com/stockx/market-engine/internal/trade"
	"github.com/stockx/market-engine/internal/worker"
	"github.com/stockx/market-engine/internal/ws"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	ctx := context.Background()

	// --- Initialize store ---
	var st store.Store
	var cleanup []func()

	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		pool, err := pgxpool.New(ctx, dbURL)
		if err != nil {
			slog.Error("database connection failed", "err", err)
			os.Exit(1)
		}
		cleanup = append(cleanup, pool.Close)

		pg := store.NewPostgresStore(pool)
		if err := pg.InitSchema(ctx); err != nil {
			slog.Error("schema initialization failed", "err", err)
			os.Exit(1)
		}
		st = pg
		slog.Info("connected to PostgreSQL")
	} else {
		slog.Warn("DATABASE_URL not set, using in-memory store (data will not persist)")
		st = store.NewMemoryStore()
	}

	// --- Price-state cache ---
	var priceCache cache.PriceCache
	if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
		opt, err := redis.ParseURL(redisURL)
		if err != nil {
			slog.Error("invalid REDIS_URL", "err", err)
			os.Exit(1)
		}
		rdb := redis.NewClient(opt)
		cleanup = append(cleanup, func() { rdb.Close() })
		priceCache = cache.NewRedisCache(rdb)
		slog.Info("Redis price cache enabled")
	} else {
		priceCache = cache.NewMemoryCache()
	}

	defer func() {
		for _, fn := range cleanup {
			fn()
		}
	}()

	// --- Instrument universe ---
	if err := seed.Instruments(ctx, st); err != nil {
		slog.Error("instrument seeding failed", "err", err)
		os.Exit(1)
	}

	// --- WebSocket hub ---
	hub := ws.NewHub()
	go hub.Run()

	// --- Services ---
	generator := pricegen.New(st, priceCache, hub, pricegen.NewSource(time.Now().UnixNano()))
	tradeSvc := trade.NewService(st)
	marketSvc := market.NewService(st, priceCache)
	authSvc := auth.NewService(st)

	// --- Background workers ---
	sched := worker.NewScheduler()
	sched.Add("price-generator", envDuration("TICK_INTERVAL", 5*time.Second), func(ctx context.Context) {
		if err := generator.AdvanceAll(ctx); err != nil {
			slog.Error("price generation pass failed", "err", err)
		}
	})
	sched.Add("order-sweep", envDuration("SWEEP_INTERVAL", 5*time.Second), tradeSvc.ProcessPendingOrders)
	sched.Start(ctx)

	// --- HTTP router ---
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(metrics.Middleware)

	// CORS middleware for frontend cross-origin requests.
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Session-Token")
			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","service":"market-engine"}`))
	})

	// Prometheus metrics endpoint.
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		// WebSocket endpoint for real-time price updates.
		r.Get("/ws", hub.HandleWS)

		// Account creation (no session required).
		r.Post("/users", func(w http.ResponseWriter, req *http.Request) {
			var body struct {
				Username string `json:"username"`
			}
			if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
				http.Error(w, `{"error":"invalid request body"}`, http.StatusBadRequest)
				return
			}
			resp, err := authSvc.CreateUser(req.Context(), body.Username)
			if err != nil {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusConflict)
				json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
				return
			}
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusCreated)
			json.NewEncoder(w).Encode(resp)
		})

		// Market data (public).
		r.Get("/stocks", marketSvc.HandleListQuotes)
		r.Get("/stocks/{symbol}/history", marketSvc.HandleHistory)

		// Trading (session required).
		r.Group(func(r chi.Router) {
			r.Use(authSvc.Middleware)
			r.Post("/orders", tradeSvc.HandleSubmitOrder)
			r.Get("/orders", tradeSvc.HandleGetOrders)
			r.Get("/portfolio", tradeSvc.HandleGetPortfolio)
		})
	})

	// --- Server ---
	srv := &http.Server{
		Addr:         ":" + port,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("market-engine listening", "port", port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "err", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down market-engine...")

	// Stop the cadence loops first so no tick commits after the cache is
	// cleared, then drain HTTP.
	sched.Stop()
	if err := priceCache.Clear(ctx); err != nil {
		slog.Warn("price cache clear failed", "err", err)
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
	}
	fmt.Println("market-engine stopped")
}

// envDuration reads a duration like "5s" from the environment, accepting a
// bare integer as seconds.
func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if n, err := strconv.Atoi(v); err == nil && n > 0 {
		return time.Duration(n) * time.Second
	}
	slog.Warn("invalid duration, using default", "key", key, "value", v, "default", fallback)
	return fallback
}
