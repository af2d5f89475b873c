package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"nni-keeper/internal/db"
	"nni-keeper/internal/logging"
	"nni-keeper/internal/router"
	"nni-keeper/internal/service"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 30 * time.Second

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API and supervise watchers",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := configFrom(cmd)
			log := logging.New(cfg.Log, "server")

			if err := db.InitDB(cfg); err != nil {
				return fmt.Errorf("初始化数据库失败: %w", err)
			}

			svc, err := service.NewServiceContext(cfg, db.DB)
			if err != nil {
				return fmt.Errorf("初始化服务失败: %w", err)
			}

			srv := &http.Server{
				Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
				Handler:           router.SetupRouter(svc),
				ReadHeaderTimeout: 10 * time.Second,
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				log.Info("server listening", "addr", srv.Addr)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
			g.Go(func() error {
				<-gctx.Done()
				log.Info("shutting down")

				shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
				defer cancel()
				return errors.Join(srv.Shutdown(shutdownCtx), svc.Close(shutdownCtx))
			})
			return g.Wait()
		},
	}
}
