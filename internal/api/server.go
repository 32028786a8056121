package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/spigell/resume-updater/internal/metrics"
)

const shutdownTimeout = 10 * time.Second

type Config struct {
	Addr            string `mapstructure:"addr"`
	DefaultEmployee string `mapstructure:"default-employee"`
}

// NewRouter wires the routes. m may be nil, /metrics is then not served.
func NewRouter(h *Handler, m *metrics.Manager, logger *zap.Logger) *gin.Engine {
	if logger == nil {
		logger = zap.NewNop()
	}

	r := gin.New()
	r.Use(gin.Recovery(), RequestID(), AccessLog(logger, m))

	r.GET("/healthz", func(c *gin.Context) { success(c, http.StatusOK, gin.H{"status": "ok"}) })
	if m != nil {
		r.GET("/metrics", gin.WrapH(m.Handler()))
	}

	r.GET("/current-user", h.CurrentUser)
	r.GET("/pending-updates", h.PendingUpdates)
	r.GET("/download", h.Download)
	r.POST("/discard", h.Discard)
	r.POST("/save", h.Save)
	r.POST("/feedback", h.Feedback)
	r.POST("/events", h.Events)
	r.POST("/retry", h.Retry)

	return r
}

// Serve runs the router until ctx is cancelled and then shuts down gracefully.
func Serve(ctx context.Context, addr string, router http.Handler, logger *zap.Logger) error {
	server := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening", zap.String("addr", addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	logger.Info("HTTP server stopped")
	return nil
}
