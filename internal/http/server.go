package http

import (
	"context"
	"errors"
	nethttp "net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// drainTimeout bounds how long in-flight requests may run after a shutdown
// signal before the listener is torn down anyway.
const drainTimeout = 10 * time.Second

// Server runs the API engine behind a net/http server so shutdown can drain
// in-flight requests instead of cutting them off.
type Server struct {
	Engine *gin.Engine
}

func NewServer(cfg RouterConfig) *Server {
	return &Server{Engine: NewRouter(cfg)}
}

// Serve blocks until the context is cancelled or the listener fails. On
// cancellation it returns whatever Shutdown reports after the drain window.
func (s *Server) Serve(ctx context.Context, address string) error {
	srv := &nethttp.Server{
		Addr:              address,
		Handler:           s.Engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, nethttp.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	drainCtx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()
	return srv.Shutdown(drainCtx)
}
