package grpc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"uptime/internal/agent"
	"uptime/internal/logger"
	"uptime/internal/models"
	"uptime/internal/monitor"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

const ServiceName = "uptime.v1.UptimeService"

// MonitorRunner is the part of the scheduler exposed over gRPC.
type MonitorRunner interface {
	CheckNow(ctx context.Context, id uint32) (*monitor.Outcome, error)
	Tick(ctx context.Context) (int, error)
}

// AgentReporter accepts agent metric uploads.
type AgentReporter interface {
	Report(ctx context.Context, id uint32, r agent.Report) (*models.Agent, error)
	Sweep(ctx context.Context) (int, error)
}

// UptimeServer is the handler set registered under ServiceName.
type UptimeServer interface {
	CheckNow(context.Context, *wrapperspb.UInt32Value) (*structpb.Struct, error)
	Tick(context.Context, *emptypb.Empty) (*wrapperspb.UInt32Value, error)
	ReportAgent(context.Context, *structpb.Struct) (*structpb.Struct, error)
	SweepAgents(context.Context, *emptypb.Empty) (*wrapperspb.UInt32Value, error)
}

type Server struct {
	monitors MonitorRunner
	agents   AgentReporter
}

func NewServer(monitors MonitorRunner, agents AgentReporter) *Server {
	return &Server{monitors: monitors, agents: agents}
}

func (s *Server) CheckNow(ctx context.Context, req *wrapperspb.UInt32Value) (*structpb.Struct, error) {
	out, err := s.monitors.CheckNow(ctx, req.GetValue())
	if err != nil {
		return nil, toStatus(err)
	}
	return outcomeStruct(out)
}

func (s *Server) Tick(ctx context.Context, _ *emptypb.Empty) (*wrapperspb.UInt32Value, error) {
	n, err := s.monitors.Tick(ctx)
	if err != nil {
		return nil, toStatus(err)
	}
	return wrapperspb.UInt32(uint32(n)), nil
}

// ReportAgent expects agent_id plus the metric fields of agent.Report.
func (s *Server) ReportAgent(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	fields := req.GetFields()
	idValue, ok := fields["agent_id"]
	if !ok {
		return nil, status.Error(codes.InvalidArgument, "agent_id is required")
	}
	id := idValue.GetNumberValue()
	if id <= 0 {
		return nil, status.Error(codes.InvalidArgument, "agent_id must be positive")
	}

	r := agent.Report{
		Hostname: fields["hostname"].GetStringValue(),
		OS:       fields["os"].GetStringValue(),
	}
	r.CPU = fields["cpu"].GetNumberValue()
	r.Memory = fields["memory"].GetNumberValue()
	r.Disk = fields["disk"].GetNumberValue()
	for _, v := range fields["ip_addresses"].GetListValue().GetValues() {
		if ip := v.GetStringValue(); ip != "" {
			r.IPAddresses = append(r.IPAddresses, ip)
		}
	}

	a, err := s.agents.Report(ctx, uint32(id), r)
	if err != nil {
		return nil, toStatus(err)
	}
	return structpb.NewStruct(map[string]interface{}{
		"id":     a.ID,
		"name":   a.Name,
		"status": a.Status,
	})
}

func (s *Server) SweepAgents(ctx context.Context, _ *emptypb.Empty) (*wrapperspb.UInt32Value, error) {
	n, err := s.agents.Sweep(ctx)
	if err != nil {
		return nil, toStatus(err)
	}
	return wrapperspb.UInt32(uint32(n)), nil
}

func outcomeStruct(out *monitor.Outcome) (*structpb.Struct, error) {
	res := out.Result
	fields := map[string]interface{}{
		"monitor_id":      out.Monitor.ID,
		"name":            out.Monitor.Name,
		"previous_status": out.Previous,
		"status":          res.Status,
		"status_code":     res.StatusCode,
		"response_time":   res.ResponseTime,
		"checked_at":      res.CheckedAt.UTC().Format(time.RFC3339),
	}
	if res.Error != "" {
		fields["error"] = res.Error
		fields["error_kind"] = string(res.Kind)
	}
	if out.Event != nil {
		fields["event"] = string(out.Event.Kind)
	}
	if out.Report != nil {
		fields["notifications_sent"] = out.Report.Sent()
	}
	st, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode outcome: %v", err)
	}
	return st, nil
}

func toStatus(err error) error {
	switch {
	case errors.Is(err, monitor.ErrMonitorNotFound), errors.Is(err, agent.ErrAgentNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, monitor.ErrCheckInProgress):
		return status.Error(codes.Aborted, err.Error())
	case errors.Is(err, monitor.ErrServiceStopped):
		return status.Error(codes.Unavailable, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*UptimeServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "CheckNow", Handler: unaryHandler("CheckNow", func(srv UptimeServer, ctx context.Context, in *wrapperspb.UInt32Value) (interface{}, error) {
			return srv.CheckNow(ctx, in)
		})},
		{MethodName: "Tick", Handler: unaryHandler("Tick", func(srv UptimeServer, ctx context.Context, in *emptypb.Empty) (interface{}, error) {
			return srv.Tick(ctx, in)
		})},
		{MethodName: "ReportAgent", Handler: unaryHandler("ReportAgent", func(srv UptimeServer, ctx context.Context, in *structpb.Struct) (interface{}, error) {
			return srv.ReportAgent(ctx, in)
		})},
		{MethodName: "SweepAgents", Handler: unaryHandler("SweepAgents", func(srv UptimeServer, ctx context.Context, in *emptypb.Empty) (interface{}, error) {
			return srv.SweepAgents(ctx, in)
		})},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "uptime/v1/uptime.proto",
}

func unaryHandler[Req any, PReq interface {
	*Req
}](method string, call func(UptimeServer, context.Context, PReq) (interface{}, error)) grpc.MethodHandler {
	return func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
		in := PReq(new(Req))
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(UptimeServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{
			Server:     srv,
			FullMethod: "/" + ServiceName + "/" + method,
		}
		handler := func(ctx context.Context, req interface{}) (interface{}, error) {
			return call(srv.(UptimeServer), ctx, req.(PReq))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// Register adds the uptime and health services to gs.
func Register(gs *grpc.Server, srv UptimeServer) *health.Server {
	gs.RegisterService(&serviceDesc, srv)
	hs := health.NewServer()
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(gs, hs)
	return hs
}

// NewGRPCServer builds a grpc.Server with request logging and the uptime
// service registered.
func NewGRPCServer(srv UptimeServer) (*grpc.Server, *health.Server) {
	gs := grpc.NewServer(grpc.UnaryInterceptor(loggingInterceptor))
	hs := Register(gs, srv)
	return gs, hs
}

func loggingInterceptor(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
	start := time.Now()
	resp, err := handler(ctx, req)
	fields := []zap.Field{
		zap.String("method", info.FullMethod),
		zap.Duration("duration", time.Since(start)),
	}
	if err != nil {
		logger.Warn("gRPC request failed", append(fields, zap.String("code", status.Code(err).String()), zap.Error(err))...)
		return resp, err
	}
	logger.Debug("gRPC request", fields...)
	return resp, nil
}

// StartServer listens on addr and serves until the server is stopped.
func StartServer(addr string, gs *grpc.Server) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}

	logger.Info("gRPC server listening", zap.String("addr", addr))

	return gs.Serve(lis)
}
