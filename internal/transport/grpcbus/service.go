// Package grpcbus carries the startTimer, pause and resume broadcasts and
// participant presence between processes over gRPC.
//
// The service uses protobuf well-known types as messages, so no generated
// code is needed:
//
//	service TimerBus {
//	  rpc Broadcast(google.protobuf.Struct) returns (google.protobuf.Struct);
//	  rpc Controller(google.protobuf.Empty) returns (google.protobuf.Struct);
//	  rpc Subscribe(google.protobuf.Struct) returns (stream google.protobuf.Struct);
//	}
package grpcbus

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "actioninitiative.v1.TimerBus"

const (
	methodBroadcast  = "/" + ServiceName + "/Broadcast"
	methodController = "/" + ServiceName + "/Controller"
	methodSubscribe  = "/" + ServiceName + "/Subscribe"
)

// Message field names.
const (
	fieldSignal      = "signal"
	fieldFrom        = "from"
	fieldParticipant = "participant"
	fieldName        = "name"
	fieldOwner       = "owner"
	fieldPresent     = "present"
	fieldDelivered   = "delivered"
)

// signalJoined acknowledges a subscription before any broadcast is relayed.
const signalJoined = "joined"

// TimerBusServer is the server API for the TimerBus service.
type TimerBusServer interface {
	Broadcast(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Controller(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	Subscribe(*structpb.Struct, grpc.ServerStream) error
}

// RegisterTimerBusServer registers srv on s.
func RegisterTimerBusServer(s grpc.ServiceRegistrar, srv TimerBusServer) {
	s.RegisterService(&timerBusServiceDesc, srv)
}

func broadcastHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(TimerBusServer).Broadcast(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodBroadcast}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(TimerBusServer).Broadcast(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func controllerHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(TimerBusServer).Controller(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodController}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(TimerBusServer).Controller(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

func subscribeHandler(srv any, stream grpc.ServerStream) error {
	in := new(structpb.Struct)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(TimerBusServer).Subscribe(in, stream)
}

var timerBusServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*TimerBusServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Broadcast", Handler: broadcastHandler},
		{MethodName: "Controller", Handler: controllerHandler},
	},
	Streams: []grpc.StreamDesc{
		{StreamName: "Subscribe", Handler: subscribeHandler, ServerStreams: true},
	},
	Metadata: "actioninitiative/v1/timerbus.proto",
}
