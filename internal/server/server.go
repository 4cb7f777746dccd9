package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/careconnect/realtime/internal/gateway"
	"github.com/careconnect/realtime/internal/notify"
	"github.com/careconnect/realtime/internal/server/middleware"
	"github.com/careconnect/realtime/pkg/auth"
	"github.com/careconnect/realtime/pkg/config"
	"github.com/careconnect/realtime/pkg/dispatch"
	"github.com/careconnect/realtime/pkg/metrics"
	"github.com/careconnect/realtime/pkg/state"
	"github.com/careconnect/realtime/pkg/state/statemanager"
	"github.com/careconnect/realtime/pkg/transport"
	"github.com/careconnect/realtime/pkg/typing"
	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
)

type App struct {
	logger       *slog.Logger
	stateManager state.Manager
	dispatcher   *dispatch.Dispatcher
	typing       *typing.Tracker
	notify       *notify.Service
	verifier     auth.Verifier
	directory    auth.UserDirectory
	metrics      *metrics.Metrics
	wg           sync.WaitGroup
	http         *http.Server
	config       *config.Config

	ctx context.Context
}

func NewApp(logger *slog.Logger, rootCtx context.Context, cfg *config.Config) *App {
	registry := prometheus.NewRegistry()
	m := metrics.New(registry)

	stateManager := statemanager.NewInMemoryManager(logger, statemanager.LimitConfig{
		MaxPerUser: cfg.Server.ConnectionLimit.MaxPerUser,
		Mode:       cfg.Server.ConnectionLimit.Mode,
	})
	dispatcher := dispatch.New(stateManager, m, logger)
	tracker := typing.NewTracker(dispatcher, cfg.Typing.TTL, logger)

	app := &App{
		logger:       logger,
		stateManager: stateManager,
		dispatcher:   dispatcher,
		typing:       tracker,
		notify:       notify.NewService(dispatcher, logger),
		verifier:     auth.NewJWTVerifier(cfg.Server.Auth.JWTSecret),
		directory:    auth.PassthroughDirectory(),
		metrics:      m,
		config:       cfg,
		ctx:          rootCtx,
	}

	mux := http.NewServeMux()
	mux.Handle("/ws",
		middleware.Chain(http.HandlerFunc(app.upgradeHandler),
			middleware.RequestMetadataMiddleware(),
			middleware.NewRequestLogger(app.logger),
		),
	)
	mux.Handle("/metrics", metrics.Handler(registry))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	app.http = &http.Server{Addr: cfg.Server.Address, Handler: mux, BaseContext: func(l net.Listener) context.Context {
		return app.ctx
	}}

	return app
}

// Notify exposes the push facade domain services (chat, appointment,
// payment) call to deliver events without touching sockets.
func (a *App) Notify() *notify.Service {
	return a.notify
}

func (a *App) Run() error {
	go func() {
		a.logger.Info("Server starting", slog.String("addr", a.http.Addr))
		if err := a.http.ListenAndServe(); err != http.ErrServerClosed {
			a.logger.Error("HTTP server failed", slog.Any("error", err))
		}
	}()

	<-a.ctx.Done()
	return a.Shutdown()
}

func (a *App) upgradeHandler(w http.ResponseWriter, r *http.Request) {
	reqMeta, _ := middleware.ReqMetadataFrom(r.Context())
	connLogger := a.logger.With(slog.String("remoteAddr", reqMeta.IP))

	wsConn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		a.logger.Error("Failed to accept websocket connection", slog.Any("error", err))
		return
	}

	conn := transport.NewConnection(
		r.Context(),
		&a.wg,
		wsConn,
		transport.ConnectionConfig{
			ReadTimeout: a.config.Transport.ReadTimeout,
			SendBuffer:  a.config.Transport.SendBuffer,
			Overflow:    transport.OverflowPolicy(a.config.Transport.OverflowPolicy),
		},
		nil,
		nil,
		connLogger,
	)

	session := gateway.NewSession(connLogger, conn, a.stateManager, a.dispatcher, a.typing, a.verifier, a.directory)
	conn.SetOnMessageHandler(session.HandleFrame)
	conn.SetOnCloseHandler(func(id uuid.UUID, err error) {
		session.HandleClose(id, err)
		a.metrics.ConnectionsActive.Dec()
	})

	a.metrics.ConnectionsActive.Inc()
	conn.Run()
	<-conn.Done()
}

// Shutdown runs the graceful shutdown sequence.
func (a *App) Shutdown() error {
	a.logger.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.http.Shutdown(shutdownCtx); err != nil {
		return err
	}

	// close all active WebSocket connections.
	a.logger.Info("Closing all active connections...")
	for _, link := range a.stateManager.AllConnections("") {
		link.Close(errors.New("graceful shutdown"))
	}

	// wait for all connection goroutines to finish their cleanup.
	a.wg.Wait()
	a.logger.Info("Server shut down gracefully.")
	return nil
}
