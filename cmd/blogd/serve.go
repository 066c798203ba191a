package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/MosinFAM/blog-posts/internal/comments"
	"github.com/MosinFAM/blog-posts/internal/likes"
	"github.com/MosinFAM/blog-posts/internal/media"
	"github.com/MosinFAM/blog-posts/internal/posts"
	"github.com/MosinFAM/blog-posts/internal/web"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := newApp(*configPath)
			if err != nil {
				return err
			}
			defer a.Close()
			return serve(ctx, a)
		},
	}
}

func serve(ctx context.Context, a *app) error {
	if a.cfg.Logger.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	if err := a.openStorage(ctx); err != nil {
		return err
	}
	objects, err := a.objectStore(ctx)
	if err != nil {
		return err
	}
	authSvc, err := a.authService()
	if err != nil {
		return err
	}

	opts := web.Options{
		AllowedOrigins: a.cfg.Server.AllowedOrigins,
		RateLimit:      a.cfg.Server.RateLimit,
		RateBurst:      a.cfg.Server.RateBurst,
		SecureCookies:  a.cfg.Server.SecureCookies,
		TrustedProxies: a.cfg.Server.TrustedProxies,
		MaxUploadBytes: a.cfg.Media.MaxUploadBytes,
	}
	if a.cfg.Media.Backend != "minio" {
		opts.MediaRoot = a.cfg.Media.Root
		opts.MediaPrefix = a.cfg.Media.BaseURL
	}

	srv, err := web.NewServer(web.Deps{
		Auth:       authSvc,
		Posts:      posts.NewService(a.store, a.log),
		Likes:      likes.NewToggler(a.store, a.log),
		Comments:   comments.NewService(a.store, a.log),
		Categories: a.categoryDirectory(ctx),
		Uploader:   media.NewUploader(objects, a.log),
	}, opts, a.log)
	if err != nil {
		return err
	}

	httpSrv := &http.Server{
		Addr:              a.cfg.Server.Addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.log.WithField("addr", httpSrv.Addr).Info("server is running")
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	a.log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}
