package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/satindergrewal/segue/internal/audio"
	"github.com/satindergrewal/segue/internal/catalog"
	"github.com/satindergrewal/segue/internal/jobs"
	"github.com/satindergrewal/segue/internal/stream"
)

func (a *app) serve(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	port := fs.Int("port", a.cfg.Port, "HTTP port")
	fs.StringVar(&a.cfg.DBPath, "db", a.cfg.DBPath, "catalog database")
	fs.StringVar(&a.cfg.OutputDir, "out", a.cfg.OutputDir, "directory for rendered transitions")
	fs.IntVar(&a.cfg.Workers, "workers", a.cfg.Workers, "concurrent transition builds")
	fs.BoolVar(&a.cfg.Preview, "preview", a.cfg.Preview, "stream finished renders live")
	fs.Parse(args)

	cat, err := catalog.Open(a.cfg.DBPath, a.factory.NewLogger("catalog"))
	if err != nil {
		return err
	}
	defer cat.Close()

	loader := &jobs.CatalogLoader{Catalog: cat, SampleRate: a.cfg.SampleRate, Channels: a.cfg.Channels}
	queue := jobs.NewQueue(jobs.Config{Workers: a.cfg.Workers, OutputDir: a.cfg.OutputDir}, loader, cat, a.factory)

	srv := &server{cfg: a.cfg, cat: cat, queue: queue, log: a.factory.NewLogger("http")}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return queue.Run(ctx) })

	if a.cfg.Preview {
		if a.cfg.SampleRate != audio.PreviewSampleRate || a.cfg.Channels != audio.PreviewChannels {
			a.log.Warnf("Renders are %d Hz/%d ch; only %d Hz/%d ch renders can be previewed live",
				a.cfg.SampleRate, a.cfg.Channels, audio.PreviewSampleRate, audio.PreviewChannels)
		}
		srv.player = audio.NewPlayer(a.factory.NewLogger("player"))
		srv.broadcaster = stream.NewBroadcaster(a.factory.NewLogger("stream"))
		srv.webrtc = stream.NewWebRTCHandler(srv.broadcaster, a.factory)
		defer srv.webrtc.Close()
		queue.SetPreviewer(srv.player)

		g.Go(func() error {
			srv.player.Run(ctx)
			return nil
		})
		g.Go(func() error {
			srv.broadcaster.Run(ctx, srv.player.Frames())
			return nil
		})
	}

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", *port),
		Handler:           srv.routes(),
		ReadHeaderTimeout: 10 * time.Second,
		// Live streams end with the server context.
		BaseContext: func(net.Listener) context.Context { return ctx },
	}
	g.Go(func() error {
		<-ctx.Done()
		a.log.Info("Shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return httpServer.Close()
		}
		return nil
	})
	g.Go(func() error {
		a.log.Infof("segue live on %s (catalog %s, renders in %s, preview %t)",
			httpServer.Addr, a.cfg.DBPath, a.cfg.OutputDir, a.cfg.Preview)
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server: %w", err)
		}
		return nil
	})

	return g.Wait()
}
