package grpcbus

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/cory-johannsen/action-initiative/internal/game/session"
	"github.com/cory-johannsen/action-initiative/internal/transport/bus"
)

// Client connects a participant process to a session host.
type Client struct {
	conn              *grpc.ClientConn
	self              string
	controllerTimeout time.Duration
	logger            *zap.Logger
}

// Dial creates a Client for the host at addr. The connection is established lazily.
//
// Precondition: addr must be host:port; self is this participant's id.
func Dial(addr, self string, controllerTimeout time.Duration, logger *zap.Logger) (*Client, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("dialing session host %s: %w", addr, err)
	}
	if controllerTimeout <= 0 {
		controllerTimeout = 2 * time.Second
	}
	return &Client{conn: conn, self: self, controllerTimeout: controllerTimeout, logger: logger}, nil
}

// Close releases the connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// BroadcastStartTimer asks the host to deliver startTimer to every participant.
func (c *Client) BroadcastStartTimer(ctx context.Context) error {
	return c.broadcast(ctx, session.SignalStartTimer)
}

// BroadcastPause asks the host to deliver pause or resume to every participant.
func (c *Client) BroadcastPause(ctx context.Context, paused bool) error {
	return c.broadcast(ctx, bus.PauseSignal(paused))
}

func (c *Client) broadcast(ctx context.Context, sig session.Signal) error {
	req := &structpb.Struct{Fields: map[string]*structpb.Value{
		fieldSignal: structpb.NewStringValue(string(sig)),
		fieldFrom:   structpb.NewStringValue(c.self),
	}}
	resp := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, methodBroadcast, req, resp); err != nil {
		return fmt.Errorf("broadcasting %s: %w", sig, err)
	}
	c.logger.Debug("signal sent",
		zap.String("signal", string(sig)),
		zap.Float64("delivered", resp.GetFields()[fieldDelivered].GetNumberValue()),
	)
	return nil
}

// Controller returns the elected controller's id, or false when no owner is present.
func (c *Client) Controller(ctx context.Context) (string, bool, error) {
	resp := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, methodController, &emptypb.Empty{}, resp); err != nil {
		return "", false, fmt.Errorf("querying controller: %w", err)
	}
	f := resp.GetFields()
	return f[fieldParticipant].GetStringValue(), f[fieldPresent].GetBoolValue(), nil
}

// IsController asks the host whether this participant is the controller right now.
// An unreachable host means no one may advance the clock.
func (c *Client) IsController() bool {
	ctx, cancel := context.WithTimeout(context.Background(), c.controllerTimeout)
	defer cancel()
	id, ok, err := c.Controller(ctx)
	if err != nil {
		c.logger.Warn("controller election unavailable", zap.Error(err))
		return false
	}
	return ok && id == c.self
}

// Subscription is an open presence stream.
type Subscription struct {
	stream grpc.ClientStream
	cancel context.CancelFunc
	logger *zap.Logger
}

// Subscribe opens the presence stream for p and waits until the host has registered it.
//
// Postcondition: p is present on the host until the subscription's context
// ends or Close is called.
func (c *Client) Subscribe(ctx context.Context, p Presence) (*Subscription, error) {
	ctx, cancel := context.WithCancel(ctx)
	stream, err := c.conn.NewStream(ctx, &timerBusServiceDesc.Streams[0], methodSubscribe)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("opening subscription: %w", err)
	}
	req := &structpb.Struct{Fields: map[string]*structpb.Value{
		fieldParticipant: structpb.NewStringValue(p.ID),
		fieldName:        structpb.NewStringValue(p.Name),
		fieldOwner:       structpb.NewBoolValue(p.Owner),
	}}
	if err := stream.SendMsg(req); err != nil {
		cancel()
		return nil, fmt.Errorf("sending presence: %w", err)
	}
	if err := stream.CloseSend(); err != nil {
		cancel()
		return nil, fmt.Errorf("closing send: %w", err)
	}
	ack := new(structpb.Struct)
	if err := stream.RecvMsg(ack); err != nil {
		cancel()
		return nil, fmt.Errorf("awaiting join: %w", err)
	}
	if got := ack.GetFields()[fieldSignal].GetStringValue(); got != signalJoined {
		cancel()
		return nil, fmt.Errorf("awaiting join: unexpected signal %q", got)
	}
	return &Subscription{stream: stream, cancel: cancel, logger: c.logger}, nil
}

// Run invokes handler for every signal relayed by the host, in arrival
// order. Handler failures are logged and do not end the subscription.
//
// Postcondition: Returns nil when ctx ends or the host closes the stream.
func (s *Subscription) Run(ctx context.Context, handler bus.Handler) error {
	defer s.cancel()
	stop := context.AfterFunc(ctx, s.cancel)
	defer stop()
	for {
		msg := new(structpb.Struct)
		if err := s.stream.RecvMsg(msg); err != nil {
			if errors.Is(err, io.EOF) || status.Code(err) == codes.Canceled || ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("receiving signal: %w", err)
		}
		sig := session.Signal(msg.GetFields()[fieldSignal].GetStringValue())
		if !sig.Known() {
			continue
		}
		if err := handler(ctx, sig); err != nil {
			s.logger.Warn("signal handler failed", zap.String("signal", string(sig)), zap.Error(err))
		}
	}
}

// Close ends the subscription; the host marks the participant absent.
func (s *Subscription) Close() {
	s.cancel()
}

// Listen subscribes p and runs handler for every relayed signal until ctx ends.
func (c *Client) Listen(ctx context.Context, p Presence, handler bus.Handler) error {
	sub, err := c.Subscribe(ctx, p)
	if err != nil {
		return err
	}
	return sub.Run(ctx, handler)
}
