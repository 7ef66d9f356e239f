package main

import (
	"context"
	"fmt"
	"net"

	"go.uber.org/zap"
	"google.golang.org/grpc"

	"github.com/cory-johannsen/action-initiative/internal/config"
	"github.com/cory-johannsen/action-initiative/internal/game/session"
	"github.com/cory-johannsen/action-initiative/internal/server"
	"github.com/cory-johannsen/action-initiative/internal/timersync"
	"github.com/cory-johannsen/action-initiative/internal/transport/bus"
	"github.com/cory-johannsen/action-initiative/internal/transport/grpcbus"
)

// timerBus is the broadcast transport selected by bus.mode together with the
// controller election it implies.
type timerBus struct {
	broadcaster  timersync.Broadcaster
	isController func() bool
	// sessions holds the pause flag and the participants known to this process.
	sessions *session.Manager
	// attach registers the local signal handler once the timer exists.
	attach func(lc *server.Lifecycle, handler bus.Handler)
}

func newTimerBus(cfg config.Config, lc *server.Lifecycle, logger *zap.Logger) (*timerBus, error) {
	self := cfg.Participant
	presence := grpcbus.Presence{ID: self.ID, Name: self.Name, Owner: self.Owner}

	switch cfg.Bus.Mode {
	case "local":
		sessions := session.NewManager()
		if _, err := sessions.Join(self.ID, self.Name, self.Owner); err != nil {
			return nil, err
		}
		local := bus.New(logger)
		return &timerBus{
			broadcaster:  local,
			isController: sessions.ControllerFunc(self.ID),
			sessions:     sessions,
			attach: func(_ *server.Lifecycle, handler bus.Handler) {
				local.Register(self.ID, handler)
			},
		}, nil

	case "server":
		sessions := session.NewManager()
		host := grpcbus.NewServer(sessions, logger)
		grpcServer := grpc.NewServer()
		grpcbus.RegisterTimerBusServer(grpcServer, host)
		lc.Add("grpc-bus", &server.FuncService{
			StartFn: func(_ context.Context) error {
				lis, err := net.Listen("tcp", cfg.Bus.Addr())
				if err != nil {
					return fmt.Errorf("listening on %s: %w", cfg.Bus.Addr(), err)
				}
				logger.Info("timer bus listening", zap.String("addr", cfg.Bus.Addr()))
				return grpcServer.Serve(lis)
			},
			StopFn: func(_ context.Context) {
				grpcServer.GracefulStop()
			},
		})
		return &timerBus{
			broadcaster:  host,
			isController: sessions.ControllerFunc(self.ID),
			sessions:     sessions,
			attach: func(lc *server.Lifecycle, handler bus.Handler) {
				lc.Add("host-participant", &server.FuncService{
					StartFn: func(ctx context.Context) error {
						return host.ServeLocal(ctx, presence, handler)
					},
				})
			},
		}, nil

	case "client":
		client, err := grpcbus.Dial(cfg.Bus.Addr(), self.ID, cfg.Bus.ControllerTimeout, logger)
		if err != nil {
			return nil, err
		}
		// The host owns presence and election. Locally the manager mirrors the
		// relayed pause state and answers the owner check for target toggles.
		sessions := session.NewManager()
		if _, err := sessions.Join(self.ID, self.Name, self.Owner); err != nil {
			return nil, err
		}
		return &timerBus{
			broadcaster:  client,
			isController: client.IsController,
			sessions:     sessions,
			attach: func(lc *server.Lifecycle, handler bus.Handler) {
				lc.Add("bus-client", &server.FuncService{
					StartFn: func(ctx context.Context) error {
						return client.Listen(ctx, presence, handler)
					},
					StopFn: func(_ context.Context) {
						if err := client.Close(); err != nil {
							logger.Warn("closing bus client", zap.Error(err))
						}
					},
				})
			},
		}, nil
	}
	return nil, fmt.Errorf("unknown bus mode %q", cfg.Bus.Mode)
}
