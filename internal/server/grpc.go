package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/joseph-ayodele/po-extractor/internal/common"
	"github.com/joseph-ayodele/po-extractor/internal/profiles"
	"github.com/joseph-ayodele/po-extractor/internal/reconcile"
)

const reconcileServiceName = "poextractor.v1.ReconcileService"

// Full method names, for clients that call the service with conn.Invoke.
const (
	MethodReconcile     = "/" + reconcileServiceName + "/Reconcile"
	MethodListCustomers = "/" + reconcileServiceName + "/ListCustomers"
)

// ReconcileServer reconciles already extracted records over gRPC. Messages are
// google.protobuf.Struct so the service needs no generated code.
type ReconcileServer interface {
	Reconcile(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	ListCustomers(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

var reconcileServiceDesc = grpc.ServiceDesc{
	ServiceName: reconcileServiceName,
	HandlerType: (*ReconcileServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Reconcile", Handler: unaryHandler(MethodReconcile, ReconcileServer.Reconcile)},
		{MethodName: "ListCustomers", Handler: unaryHandler(MethodListCustomers, ReconcileServer.ListCustomers)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "poextractor/v1/reconcile.proto",
}

func unaryHandler(fullMethod string, call func(ReconcileServer, context.Context, *structpb.Struct) (*structpb.Struct, error)) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(ReconcileServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(ReconcileServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// ReconcileService implements ReconcileServer over the profile registry.
type ReconcileService struct {
	registry   *profiles.Registry
	reconciler *reconcile.Reconciler
	batchLimit int
	logger     *slog.Logger
}

func NewReconcileService(registry *profiles.Registry, reconciler *reconcile.Reconciler, batchLimit int, logger *slog.Logger) *ReconcileService {
	if logger == nil {
		logger = slog.Default()
	}
	return &ReconcileService{registry: registry, reconciler: reconciler, batchLimit: batchLimit, logger: logger}
}

// Reconcile accepts {customer, data} for one document or {documents: [{id, customer, data}]}
// for a batch. data is either the model's JSON text or an object.
func (s *ReconcileService) Reconcile(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	fields := req.GetFields()
	customer := fields["customer"].GetStringValue()

	if list := fields["documents"].GetListValue(); list != nil {
		docs := make([]reconcile.Document, 0, len(list.GetValues()))
		for i, v := range list.GetValues() {
			d := v.GetStructValue().GetFields()
			id := d["id"].GetStringValue()
			if id == "" {
				id = fmt.Sprintf("doc-%d", i+1)
			}
			c := d["customer"].GetStringValue()
			if c == "" {
				c = customer
			}
			raw, err := rawValue(d["data"])
			if err != nil {
				return nil, common.InvalidArgumentErrorf("documents[%d].data: %v", i, err)
			}
			docs = append(docs, reconcile.Document{ID: id, Customer: c, Raw: raw})
		}
		results := map[string]any{}
		for _, r := range s.reconciler.ReconcileBatch(ctx, s.registry, docs, s.batchLimit) {
			entry := map[string]any{"customer": r.Customer}
			if r.Error != nil {
				entry["error"] = map[string]any{"code": r.Error.Code, "message": r.Error.Message}
			} else {
				entry["records"] = recordsValue(r.Records)
				entry["warnings"] = stringsValue(r.Warnings)
			}
			results[r.ID] = entry
		}
		return structpb.NewStruct(map[string]any{"results": results})
	}

	v := common.NewValidator().Field("customer", customer, common.Required, common.CustomerCode, common.MaxLength(32))
	if err := common.ValidateAndReturnError(v); err != nil {
		return nil, err
	}
	profile, err := s.registry.Lookup(customer)
	if err != nil {
		return nil, common.ToGRPCError(err)
	}
	raw, err := rawValue(fields["data"])
	if err != nil {
		return nil, common.InvalidArgumentErrorf("data: %v", err)
	}
	outcomes, err := s.reconciler.ReconcileDocument(raw, profile)
	if err != nil {
		return nil, common.ToGRPCError(err)
	}
	var warnings []string
	for _, o := range outcomes {
		warnings = append(warnings, o.Warnings...)
	}
	return structpb.NewStruct(map[string]any{
		"customer": profile.Code,
		"records":  recordsValue(reconcile.Records(outcomes)),
		"warnings": stringsValue(warnings),
	})
}

func (s *ReconcileService) ListCustomers(_ context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	var out []any
	for _, p := range s.registry.Profiles() {
		shipTo := make([]any, 0, len(p.ShipTo))
		for _, c := range p.ShipTo {
			shipTo = append(shipTo, map[string]any{"code": c.Code, "address": c.Address})
		}
		out = append(out, map[string]any{"code": p.Code, "label": p.Label, "ship_to": shipTo})
	}
	return structpb.NewStruct(map[string]any{"customers": out})
}

func rawValue(v *structpb.Value) (string, error) {
	switch k := v.GetKind().(type) {
	case *structpb.Value_StringValue:
		return k.StringValue, nil
	case *structpb.Value_StructValue, *structpb.Value_ListValue:
		b, err := json.Marshal(v.AsInterface())
		if err != nil {
			return "", err
		}
		return string(b), nil
	case nil:
		return "", fmt.Errorf("is required")
	default:
		return "", fmt.Errorf("must be a string, object or list")
	}
}

func recordsValue(recs []reconcile.Record) []any {
	out := make([]any, len(recs))
	for i, r := range recs {
		m := make(map[string]any, len(r))
		for k, v := range r {
			m[k] = v
		}
		out[i] = m
	}
	return out
}

func stringsValue(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}

// GRPCServer hosts the reconcile service and the standard health service.
type GRPCServer struct {
	srv    *grpc.Server
	health *health.Server
	logger *slog.Logger
}

func NewGRPCServer(svc ReconcileServer, logger *slog.Logger) *GRPCServer {
	if logger == nil {
		logger = slog.Default()
	}
	srv := grpc.NewServer(grpc.ChainUnaryInterceptor(unaryLogger(logger)))
	hs := health.NewServer()
	healthpb.RegisterHealthServer(srv, hs)
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	hs.SetServingStatus(reconcileServiceName, healthpb.HealthCheckResponse_SERVING)
	srv.RegisterService(&reconcileServiceDesc, svc)
	return &GRPCServer{srv: srv, health: hs, logger: logger}
}

// Serve blocks on lis until ctx is cancelled.
func (g *GRPCServer) Serve(ctx context.Context, lis net.Listener) error {
	errCh := make(chan error, 1)
	go func() {
		g.logger.Info("grpc.listen", "addr", lis.Addr().String())
		errCh <- g.srv.Serve(lis)
	}()
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		g.health.Shutdown()
		g.srv.GracefulStop()
		return nil
	}
}

func unaryLogger(logger *slog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		if err != nil {
			logger.Warn("grpc.request", "method", info.FullMethod, "elapsed_ms", time.Since(start).Milliseconds(), "err", err)
		} else {
			logger.Debug("grpc.request", "method", info.FullMethod, "elapsed_ms", time.Since(start).Milliseconds())
		}
		return resp, err
	}
}
