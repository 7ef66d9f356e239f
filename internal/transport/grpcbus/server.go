package grpcbus

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/cory-johannsen/action-initiative/internal/game/session"
	"github.com/cory-johannsen/action-initiative/internal/transport/bus"
)

// Presence identifies a participant joining the session.
type Presence struct {
	ID    string
	Name  string
	Owner bool
}

// Server hosts the session: it tracks presence through the session manager,
// elects the controller, and relays broadcasts to every subscriber.
type Server struct {
	sessions *session.Manager
	logger   *zap.Logger
}

// NewServer creates a Server over sessions.
//
// Precondition: sessions and logger must be non-nil.
func NewServer(sessions *session.Manager, logger *zap.Logger) *Server {
	return &Server{sessions: sessions, logger: logger}
}

// Broadcast implements TimerBusServer.
func (s *Server) Broadcast(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	sig := session.Signal(req.GetFields()[fieldSignal].GetStringValue())
	if !sig.Known() {
		return nil, status.Errorf(codes.InvalidArgument, "unknown signal %q", sig)
	}
	n := s.broadcast(req.GetFields()[fieldFrom].GetStringValue(), sig)
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		fieldDelivered: structpb.NewNumberValue(float64(n)),
	}}, nil
}

// Controller implements TimerBusServer.
func (s *Server) Controller(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	id, ok := s.sessions.Controller()
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		fieldParticipant: structpb.NewStringValue(id),
		fieldPresent:     structpb.NewBoolValue(ok),
	}}, nil
}

// Subscribe implements TimerBusServer. The participant is present for as long
// as the stream stays open.
func (s *Server) Subscribe(req *structpb.Struct, stream grpc.ServerStream) error {
	p := presenceFrom(req)
	if p.ID == "" {
		return status.Error(codes.InvalidArgument, "participant id must not be empty")
	}
	participant, err := s.sessions.Join(p.ID, p.Name, p.Owner)
	if err != nil {
		return status.Error(codes.AlreadyExists, err.Error())
	}
	defer s.leave(p.ID)
	s.logger.Info("participant subscribed", zap.String("participant", p.ID), zap.Bool("owner", p.Owner))

	if err := stream.SendMsg(signalMessage(signalJoined)); err != nil {
		return err
	}
	// A participant joining mid-pause must not start ticking on its own.
	if s.sessions.Paused() {
		if err := stream.SendMsg(signalMessage(string(session.SignalPause))); err != nil {
			return err
		}
	}
	for {
		select {
		case sig, ok := <-participant.Entity.Signals():
			if !ok {
				return nil
			}
			if err := stream.SendMsg(signalMessage(string(sig))); err != nil {
				return err
			}
		case <-stream.Context().Done():
			return nil
		}
	}
}

// BroadcastStartTimer delivers startTimer to every present participant. It
// lets the hosting process act as a timersync.Broadcaster.
func (s *Server) BroadcastStartTimer(context.Context) error {
	s.broadcast("host", session.SignalStartTimer)
	return nil
}

// BroadcastPause delivers pause or resume to every present participant.
func (s *Server) BroadcastPause(_ context.Context, paused bool) error {
	s.broadcast("host", bus.PauseSignal(paused))
	return nil
}

// ServeLocal joins p to the session in-process and runs handler for every
// signal until ctx is done.
//
// Postcondition: p has left the session when ServeLocal returns.
func (s *Server) ServeLocal(ctx context.Context, p Presence, handler bus.Handler) error {
	participant, err := s.sessions.Join(p.ID, p.Name, p.Owner)
	if err != nil {
		return fmt.Errorf("joining local participant: %w", err)
	}
	defer s.leave(p.ID)
	for {
		select {
		case sig, ok := <-participant.Entity.Signals():
			if !ok {
				return nil
			}
			if !sig.Known() {
				continue
			}
			if err := handler(ctx, sig); err != nil {
				s.logger.Warn("local signal handler failed",
					zap.String("participant", p.ID), zap.String("signal", string(sig)), zap.Error(err))
			}
		case <-ctx.Done():
			return nil
		}
	}
}

// Sessions returns the session manager backing the server.
func (s *Server) Sessions() *session.Manager {
	return s.sessions
}

func (s *Server) broadcast(from string, sig session.Signal) int {
	n, err := s.sessions.Broadcast(sig)
	if err != nil {
		s.logger.Warn("signal not delivered to every participant", zap.String("signal", string(sig)), zap.Error(err))
	}
	s.logger.Debug("signal relayed", zap.String("signal", string(sig)), zap.String("from", from), zap.Int("delivered", n))
	return n
}

func (s *Server) leave(id string) {
	if err := s.sessions.Leave(id); err != nil {
		s.logger.Warn("leaving session", zap.String("participant", id), zap.Error(err))
		return
	}
	s.logger.Info("participant left", zap.String("participant", id))
}

func presenceFrom(req *structpb.Struct) Presence {
	f := req.GetFields()
	return Presence{
		ID:    f[fieldParticipant].GetStringValue(),
		Name:  f[fieldName].GetStringValue(),
		Owner: f[fieldOwner].GetBoolValue(),
	}
}

func signalMessage(sig string) *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		fieldSignal: structpb.NewStringValue(sig),
	}}
}
