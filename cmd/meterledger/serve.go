package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/bher20/meterledger/internal/api"
	"github.com/bher20/meterledger/internal/auth"
	"github.com/bher20/meterledger/internal/usage"
)

var (
	serveAddr       string
	serveWithWorker bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default from METERLEDGER_ADDR or :8080)")
	serveCmd.Flags().BoolVar(&serveWithWorker, "with-worker", false, "also run the statistics worker in this process")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if serveAddr != "" {
		cfg.Addr = serveAddr
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStorage(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	authz, err := auth.NewService(st)
	if err != nil {
		return fmt.Errorf("initialising authorization: %w", err)
	}
	svc := usage.NewService(usage.Config{Overflow: cfg.Overflow()}, st)

	if serveWithWorker {
		w, closeWorker, err := newWorker(cfg, st, svc)
		if err != nil {
			return err
		}
		defer closeWorker()
		go func() {
			if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Printf("cron worker stopped: %v", err)
			}
		}()
	}

	h := &http.Server{
		Addr:              cfg.Addr,
		Handler:           api.NewServer(svc, authz, st),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	ln, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		return fmt.Errorf("listen %q: %w", cfg.Addr, err)
	}
	log.Printf("meterledger listening on %s (driver=%s)", cfg.Addr, cfg.DB.Driver)

	go func() {
		<-ctx.Done()
		log.Printf("shutting down HTTP")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = h.Shutdown(shutdownCtx)
	}()

	if err := h.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve: %w", err)
	}
	return nil
}
