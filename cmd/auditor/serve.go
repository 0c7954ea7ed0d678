package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"kb-auditor/internal/apiserver/audit"
	"kb-auditor/internal/auditor"
)

func init() {
	rootCmd.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run the scheduled auditor and the review API",
		RunE:  runServe,
	})
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := loadApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	aud, err := a.newAuditor(reg)
	if err != nil {
		return err
	}
	reviewer := auditor.NewReviewer(a.infra.Store, a.infra.Queue, aud.Metrics(), a.logger)
	scheduler := auditor.NewScheduler(aud, a.infra.Queue, a.cfg.Auditor.Frequency, a.cfg.Auditor.RunOnStartup, a.logger)

	h := audit.NewHandler(reviewer, a.infra.Queue, reg, audit.NewMetrics(reg), a.logger.Named("http"))
	srv := &http.Server{
		Addr:         ":" + a.cfg.APIPort,
		Handler:      h.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// defer 先于 a.Close 执行：在途批次释放锁、写完审核队列后才关闭后端
	defer runScheduler(ctx, scheduler)()

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("review API listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	a.logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// runScheduler 在后台运行调度器，返回的函数取消调度并等待 Start 返回
func runScheduler(ctx context.Context, s *auditor.Scheduler) (shutdown func()) {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.Start(ctx)
	}()
	return func() {
		cancel()
		s.Stop()
		<-done
	}
}
