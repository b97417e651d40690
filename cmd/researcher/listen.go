package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/mohammad-safakhou/researcher/internal/agent/telemetry"
	"github.com/mohammad-safakhou/researcher/internal/queue/streams"
	"github.com/mohammad-safakhou/researcher/internal/worker"
)

func listenCMD(cfgPath *string) *cobra.Command {
	var metricsAddr string
	cmd := &cobra.Command{
		Use:   "listen",
		Short: "Consume protocol messages from the inbox stream until the workflow completes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := bootstrapRuntime(cmd.Context(), *cfgPath, needs{
				retrieve: true, infer: true, crawl: true, search: true, redis: true, rebuild: true,
			})
			if err != nil {
				return err
			}
			defer rt.Shutdown()
			if metricsAddr == "" {
				metricsAddr = rt.cfg.Telemetry.MetricsAddr
			}
			return listen(cmd.Context(), rt, metricsAddr)
		},
	}
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve prometheus metrics on this address (e.g. :9090)")
	return cmd
}

func listen(ctx context.Context, rt *researchRuntime, metricsAddr string) error {
	mcfg := rt.cfg.Messaging
	registry, err := streams.NewBaseRegistry()
	if err != nil {
		return err
	}
	if err := streams.EnsureGroup(ctx, rt.redis, mcfg.InboxStream, mcfg.Group); err != nil {
		return err
	}

	name := mcfg.Consumer
	if name == "" {
		host, _ := os.Hostname()
		name = fmt.Sprintf("%s-%s", host, uuid.NewString()[:8])
	}
	consumer := streams.NewConsumer(rt.redis, registry, mcfg.Group, name, rt.sugar.Named("streams"))
	if lag, err := consumer.Lag(ctx, mcfg.InboxStream); err == nil {
		rt.sugar.Infof("Inbox %s: %d pending, lag %d", mcfg.InboxStream, lag.Pending, lag.Lag)
	}

	processor := worker.NewProcessor(worker.Options{
		Handler: rt.agent,
		Source:  consumer,
		Sink:    streams.NewPublisher(rt.redis, registry),
		Inbox:   mcfg.InboxStream,
		Outbox:  mcfg.OutboxStream,
		Block:   mcfg.Block,
		Logger:  rt.sugar.Named("worker").With("consumer", name),
	})

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)
	if metricsAddr != "" {
		rt.sugar.Infof("Serving metrics on %s", metricsAddr)
		g.Go(func() error { return telemetry.Serve(gctx, metricsAddr, rt.registry) })
	}
	g.Go(func() error {
		// the workflow finishing stops the metrics server too
		defer cancel()
		return processor.Start(gctx)
	})

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
