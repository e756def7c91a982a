// Package main is a headless call peer: it places or answers calls over the
// configured signaling backend.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/campuscupid/call"
	"github.com/campuscupid/call/pkg/mediasource"
)

const (
	flagUID       = "uid"
	flagRemote    = "remote"
	flagMatch     = "match"
	flagSignal    = "signal"
	flagDir       = "dir"
	flagSynthetic = "synthetic"
	flagDecline   = "decline"
	flagHangup    = "hangup-after"
	flagEnv       = "env"
	flagDebug     = "debug"

	signalFirestore = "firestore"
	signalFile      = "file"
)

func main() {
	app := &cli.App{
		Name:  "callpeer",
		Usage: "place and answer peer-to-peer calls",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     flagUID,
				Usage:    "local user id",
				Required: true,
			},
			&cli.StringFlag{
				Name:  flagMatch,
				Usage: "match id the call belongs to (firestore)",
			},
			&cli.StringFlag{
				Name:  flagSignal,
				Value: signalFile,
				Usage: "signaling backend: firestore or file",
			},
			&cli.StringFlag{
				Name:  flagDir,
				Value: "calls",
				Usage: "call record directory (file)",
			},
			&cli.BoolFlag{
				Name:  flagSynthetic,
				Usage: "send silence instead of capturing camera and microphone",
			},
			&cli.StringSliceFlag{
				Name:  flagEnv,
				Usage: "env files to load",
			},
			&cli.BoolFlag{
				Name:  flagDebug,
				Usage: "debug logging",
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "call",
				Usage: "call the other member of the match",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  flagRemote,
						Usage: "remote user id, for logging",
					},
					&cli.DurationFlag{
						Name:  flagHangup,
						Usage: "hang up this long after dialing (0 keeps the call)",
					},
				},
				Action: callAction,
			},
			{
				Name:  "listen",
				Usage: "wait for calls and answer them",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  flagDecline,
						Usage: "decline every incoming call",
					},
				},
				Action: listenAction,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type peer struct {
	logger     *zap.Logger
	config     call.Config
	client     *call.Client
	channels   call.ChannelFactory
	watcher    call.OfferWatcher
	media      mediasource.Source
	closeFuncs []func() error
}

func newLogger(c *cli.Context) (*zap.Logger, error) {
	config := zap.NewDevelopmentConfig()
	if !c.Bool(flagDebug) {
		config.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	return config.Build()
}

func setup(ctx context.Context, c *cli.Context, logger *zap.Logger) (*peer, error) {
	config, err := call.LoadConfig(c.StringSlice(flagEnv)...)
	if err != nil {
		return nil, err
	}

	clientConfig := call.DefaultClientConfig()
	options := append(clientConfig.ToOptions(),
		call.WithSTUNServer(config.STUNServer),
		call.WithStatsInterval(config.StatsInterval),
		call.WithClientLogger(logger),
	)
	client, err := call.NewClient(ctx, nil, nil, nil, options...)
	if err != nil {
		return nil, err
	}

	p := &peer{
		logger:     logger,
		config:     config,
		client:     client,
		closeFuncs: []func() error{client.Close},
	}

	if err := p.signaling(ctx, c); err != nil {
		p.close()
		return nil, err
	}

	if c.Bool(flagSynthetic) {
		p.media = mediasource.NewSyntheticSource(logger)
	} else {
		p.media = mediasource.NewDeviceSource(logger)
	}

	return p, nil
}

func (p *peer) signaling(ctx context.Context, c *cli.Context) error {
	switch c.String(flagSignal) {
	case signalFirestore:
		match := c.String(flagMatch)
		if match == "" {
			return errors.New("--match is required with the firestore backend")
		}
		firestoreSignal, err := call.CreateFirestoreSignal(ctx, p.logger)
		if err != nil {
			return err
		}
		p.channels = firestoreSignal.ChannelFactory(match)
		p.watcher = firestoreSignal.Watcher(match)
		p.closeFuncs = append(p.closeFuncs, firestoreSignal.Close)
	case signalFile:
		fileSignal, err := call.CreateFileSignal(c.String(flagDir), p.logger)
		if err != nil {
			return err
		}
		p.channels = fileSignal.ChannelFactory()
		p.watcher = fileSignal
	default:
		return fmt.Errorf("unknown signaling backend %q", c.String(flagSignal))
	}
	return nil
}

func (p *peer) close() {
	for i := len(p.closeFuncs) - 1; i >= 0; i-- {
		if err := p.closeFuncs[i](); err != nil {
			p.logger.Warn("error while closing", zap.Error(err))
		}
	}
}

func (p *peer) controller(uid string, options ...call.ControllerOption) (*call.Controller, error) {
	options = append([]call.ControllerOption{
		call.WithControllerLogger(p.logger),
		call.WithControllerConfig(p.config),
		call.WithOfferWatcher(p.watcher),
		call.WithOnCallConnected(func(callID string) {
			p.logger.Info("call connected", zap.String("call_id", callID))
		}),
	}, options...)
	return call.NewController(uid, p.channels, p.media, p.client.PeerFactory(), options...)
}

func report(ctx context.Context, logger *zap.Logger, engine *call.Engine) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-engine.Done():
			return
		case <-ticker.C:
			t := engine.Telemetry()
			logger.Info(t.Status,
				zap.String("state", string(t.State)),
				zap.Float64("remote_level", t.RemoteAudioLevel),
				zap.Duration("rtt", t.Stats.RoundTripTime()),
				zap.Uint64("bytes_received", t.Stats.BytesReceived()),
			)
		}
	}
}

func callAction(c *cli.Context) error {
	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger, err := newLogger(c)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	p, err := setup(ctx, c, logger)
	if err != nil {
		return err
	}
	defer p.close()

	ended := make(chan call.Termination, 1)
	controller, err := p.controller(c.String(flagUID), call.WithOnCallEnded(func(callID string, termination call.Termination) {
		ended <- termination
	}))
	if err != nil {
		return err
	}
	defer func() { _ = controller.Close() }()

	engine, err := controller.StartCall(ctx, c.String(flagRemote))
	if err != nil {
		return err
	}
	go report(ctx, logger, engine)

	var hangup <-chan time.Time
	if after := c.Duration(flagHangup); after > 0 {
		timer := time.NewTimer(after)
		defer timer.Stop()
		hangup = timer.C
	}

	for {
		select {
		case <-ctx.Done():
			engine.Hangup()
			engine.Wait()
			return nil
		case <-hangup:
			engine.Hangup()
		case termination := <-ended:
			logger.Info("call ended", zap.String("reason", termination.Status()), zap.String("state", string(termination.State)))
			if termination.State == call.StateError {
				return termination.Reason
			}
			return nil
		}
	}
}

func listenAction(c *cli.Context) error {
	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger, err := newLogger(c)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	p, err := setup(ctx, c, logger)
	if err != nil {
		return err
	}
	defer p.close()

	incoming := make(chan *call.IncomingCall, 1)
	controller, err := p.controller(c.String(flagUID),
		call.WithOnIncomingCall(func(ic *call.IncomingCall) {
			select {
			case incoming <- ic:
			default:
			}
		}),
		call.WithOnIncomingDismissed(func(callID string) {
			logger.Info("caller gave up", zap.String("call_id", callID))
		}),
		call.WithOnCallEnded(func(callID string, termination call.Termination) {
			logger.Info("call ended", zap.String("call_id", callID), zap.String("reason", termination.Status()))
		}),
	)
	if err != nil {
		return err
	}
	defer func() { _ = controller.Close() }()

	if err := controller.Watch(ctx); err != nil {
		return err
	}
	logger.Info("waiting for calls")

	for {
		select {
		case <-ctx.Done():
			return nil
		case ic := <-incoming:
			if c.Bool(flagDecline) {
				if err := ic.Decline(ctx); err != nil {
					logger.Warn("failed to decline", zap.Error(err))
				}
				continue
			}

			engine, err := ic.Accept(ctx)
			if err != nil {
				logger.Warn("failed to accept", zap.String("call_id", ic.CallID()), zap.Error(err))
				continue
			}
			go report(ctx, logger, engine)
		}
	}
}
