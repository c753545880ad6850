package main

import (
	"context"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/nijaru/yt-summarizer/companion"
	"github.com/nijaru/yt-summarizer/config"
	"github.com/nijaru/yt-summarizer/handlers"
	"github.com/nijaru/yt-summarizer/messaging"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the coordinator HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			st, err := buildStack(cfg, true)
			if err != nil {
				logrus.WithError(err).Error("Failed to build coordinator")
				return err
			}
			defer func() {
				if err := st.closer.Close(); err != nil {
					logrus.WithError(err).Error("Failed to release resources")
				}
			}()

			probeCompanion(ctx, cfg)

			if need := st.requestTimeout + 5*time.Second; cfg.WriteTimeout < need {
				logrus.WithFields(logrus.Fields{
					"configured": cfg.WriteTimeout,
					"raised_to":  need,
				}).Warn("Write timeout shorter than a summarize request, raising it")
				cfg.WriteTimeout = need
			}

			router := handlers.NewRouter(st.coordinator, handlers.Options{
				RequestTimeout:    st.requestTimeout,
				RateLimit:         cfg.RateLimit,
				RateLimitInterval: cfg.RateLimitInterval,
			})
			return serveHTTP(ctx, "coordinator", cfg.ServerPort, router)
		},
	}
}

func newAgentCmd() *cobra.Command {
	var withAMQP bool
	cmd := &cobra.Command{
		Use:   "agent",
		Short: "Host page agents reachable over HTTP and, optionally, AMQP",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			host := newHost(cfg, newFetcher(cfg))
			defer func() {
				if err := host.Close(); err != nil {
					logrus.WithError(err).Error("Failed to close page agents")
				}
			}()

			g, ctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				return serveHTTP(ctx, "agent", cfg.AgentPort, messaging.NewHTTPHandler(host))
			})
			if withAMQP || cfg.Agent.Transport == config.TransportAMQP {
				srv, err := messaging.NewAMQPServer(messaging.AMQPConfig{URL: cfg.Agent.AMQPURL, Queue: cfg.Agent.AMQPQueue}, host)
				if err != nil {
					logrus.WithError(err).Error("Failed to start AMQP agent server")
					return err
				}
				defer srv.Close()
				g.Go(func() error {
					if err := srv.Serve(ctx); err != nil && ctx.Err() == nil {
						return err
					}
					return nil
				})
			}
			return g.Wait()
		},
	}
	cmd.Flags().BoolVar(&withAMQP, "amqp", false, "also consume agent requests from AMQP_QUEUE")
	return cmd
}

func newCompanionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "companion",
		Short: "Run the local companion transcript server",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			opener := newOpener(cfg, newFetcher(cfg))
			if c, ok := opener.(io.Closer); ok {
				defer c.Close()
			}
			svc := companion.NewService(opener, cfg.Sources.WatchURL, cfg.Companion.Languages)
			return serveHTTP(ctx, "companion", cfg.CompanionPort, companion.NewHandler(svc))
		},
	}
}

// serveHTTP runs handler on port until ctx is done, then shuts down within
// the configured timeout.
func serveHTTP(ctx context.Context, name, port string, handler http.Handler) error {
	server := &http.Server{
		Addr:         ":" + port,
		Handler:      handler,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
	log := logrus.WithFields(logrus.Fields{"server": name, "port": port})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("Listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Error("Could not listen")
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("Shutting down the server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.WithError(err).Error("Server shutdown failed")
			return err
		}
		return nil
	})
	return g.Wait()
}
