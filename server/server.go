package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gorilla/websocket"
	"github.com/techagentng/collera/config"
	"github.com/techagentng/collera/db"
	"github.com/techagentng/collera/realtime"
	"github.com/techagentng/collera/services"
	"golang.org/x/sync/errgroup"
)

// Server has all the dependencies the HTTP layer needs.
type Server struct {
	Config          *config.Config
	DB              *db.GormDB
	UserRepository  db.UserRepository
	IdentityService services.IdentityService
	ChatService     services.ChatService
	Realtime        *realtime.Manager
	Upgrader        *websocket.Upgrader
}

// Start serves until SIGINT or SIGTERM, then drains HTTP requests and closes
// every realtime session.
func (s *Server) Start() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := s.Run(ctx); err != nil {
		log.Fatalf("server error: %v", err)
	}
	log.Println("Server exiting")
}

// Run serves until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", s.Config.Port),
		Handler: s.setupRouter(),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Printf("Server started on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Println("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.Config.ShutdownTimeout)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)
		s.Realtime.Close()
		return err
	})
	return g.Wait()
}
