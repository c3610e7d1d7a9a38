// Package grpcserver exposes the participant status coordinator over gRPC.
//
// Messages are google.protobuf.Struct values whose fields mirror the JSON
// bodies of the HTTP API, so the gateway can forward either transport
// without generated stubs. This package only deals with transport
// concerns: metadata extraction, error mapping and message conversion.
package grpcserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"workforce/status-service/internal/pipeline"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "workforce.status.v1.ParticipantStatusService"

// StatusServiceServer is the server API for ParticipantStatusService.
type StatusServiceServer interface {
	Transition(context.Context, *structpb.Struct) (*structpb.Struct, error)
	BulkEngage(context.Context, *structpb.Struct) (*structpb.Struct, error)
	HideStatus(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListStatuses(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// Server implements StatusServiceServer on top of a pipeline.Coordinator.
type Server struct {
	coord *pipeline.Coordinator
}

var _ StatusServiceServer = (*Server)(nil)

// NewServer constructs a gRPC Server backed by coord.
func NewServer(coord *pipeline.Coordinator) *Server {
	return &Server{coord: coord}
}

// Register mounts srv on s.
func Register(s grpc.ServiceRegistrar, srv StatusServiceServer) {
	s.RegisterService(&serviceDesc, srv)
}

// ─── RPC implementations ──────────────────────────────────────────────────────

type transitionRequest struct {
	ParticipantID   string          `json:"participantId"`
	EmployerID      string          `json:"employerId"`
	Status          string          `json:"status"`
	Data            json.RawMessage `json:"data"`
	CurrentStatusID int64           `json:"currentStatusId"`
}

// Transition moves one participant. Business-rule rejections are returned
// as a normal response whose "status" field names the rejection kind.
func (s *Server) Transition(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	user, err := actingUserFromCtx(ctx)
	if err != nil {
		return nil, err
	}
	var req transitionRequest
	if err := fromStruct(in, &req); err != nil {
		return nil, err
	}

	target, err := pipeline.ParseStatus(req.Status)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	var data pipeline.Payload
	if !pipeline.IsInternalOnly(target) {
		if data, err = pipeline.DecodePayload(target, req.Data); err != nil {
			return nil, status.Error(codes.InvalidArgument, err.Error())
		}
	}
	employerID := req.EmployerID
	if employerID == "" {
		employerID = user.ID
	}

	res, err := s.coord.Transition(ctx, pipeline.TransitionRequest{
		EmployerID:      employerID,
		ParticipantID:   req.ParticipantID,
		Status:          target,
		Data:            data,
		User:            user,
		CurrentStatusID: req.CurrentStatusID,
	})
	if err != nil {
		return nil, toGRPCError(err)
	}
	return toStruct(res.Response())
}

// BulkEngage prospects many participants for the caller.
func (s *Server) BulkEngage(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	user, err := actingUserFromCtx(ctx)
	if err != nil {
		return nil, err
	}
	var req struct {
		ParticipantIDs []string `json:"participantIds"`
		Site           int64    `json:"site"`
	}
	if err := fromStruct(in, &req); err != nil {
		return nil, err
	}
	if len(req.ParticipantIDs) == 0 {
		return nil, status.Error(codes.InvalidArgument, "participantIds is required")
	}

	// Per-participant failures are already reported in the results.
	results, _ := s.coord.BulkEngage(ctx, pipeline.EngageRequest{
		ParticipantIDs: req.ParticipantIDs,
		User:           user,
		Site:           req.Site,
	})
	return toStruct(map[string]any{"results": results})
}

// HideStatus hides one status record from the caller's views.
func (s *Server) HideStatus(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	user, err := actingUserFromCtx(ctx)
	if err != nil {
		return nil, err
	}
	var req struct {
		StatusID int64 `json:"statusId"`
	}
	if err := fromStruct(in, &req); err != nil {
		return nil, err
	}
	if req.StatusID == 0 {
		return nil, status.Error(codes.InvalidArgument, "statusId is required")
	}
	if err := s.coord.HideStatusForUser(ctx, user.ID, req.StatusID); err != nil {
		return nil, toGRPCError(err)
	}
	return toStruct(map[string]any{"id": req.StatusID, "hidden": true})
}

// ListStatuses returns a participant's full status log.
func (s *Server) ListStatuses(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	if _, err := actingUserFromCtx(ctx); err != nil {
		return nil, err
	}
	var req struct {
		ParticipantID string `json:"participantId"`
	}
	if err := fromStruct(in, &req); err != nil {
		return nil, err
	}
	records, err := s.coord.History(ctx, req.ParticipantID)
	if err != nil {
		return nil, toGRPCError(err)
	}
	if records == nil {
		records = []pipeline.StatusRecord{}
	}
	return toStruct(map[string]any{"statuses": records})
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

// actingUserFromCtx resolves the caller from the x-user-* metadata the
// gateway forwards.
func actingUserFromCtx(ctx context.Context) (pipeline.ActingUser, error) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return pipeline.ActingUser{}, status.Error(codes.Unauthenticated, "missing metadata")
	}
	user, err := pipeline.ParseActingUser(first(md, "x-user-id"), first(md, "x-user-sites"), first(md, "x-user-roles"))
	if err != nil {
		return pipeline.ActingUser{}, status.Error(codes.Unauthenticated, err.Error())
	}
	return user, nil
}

func first(md metadata.MD, key string) string {
	if vals := md.Get(key); len(vals) > 0 {
		return vals[0]
	}
	return ""
}

// toGRPCError maps domain errors to gRPC status errors.
func toGRPCError(err error) error {
	if errors.Is(err, pipeline.ErrParticipantNotFound) || errors.Is(err, pipeline.ErrStatusNotFound) {
		return status.Error(codes.NotFound, err.Error())
	}
	var ve *pipeline.ValidationError
	if errors.As(err, &ve) {
		return status.Error(codes.InvalidArgument, ve.Msg)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return status.FromContextError(err).Err()
	}
	return status.Error(codes.Internal, "internal server error")
}

// fromStruct decodes a Struct message into a request type through its JSON
// form.
func fromStruct(in *structpb.Struct, out any) error {
	raw, err := json.Marshal(in.AsMap())
	if err != nil {
		return status.Error(codes.InvalidArgument, err.Error())
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return status.Error(codes.InvalidArgument, fmt.Sprintf("malformed request: %v", err))
	}
	return nil
}

// toStruct converts a JSON-serialisable value to a Struct message.
func toStruct(v any) (*structpb.Struct, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	out, err := structpb.NewStruct(m)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return out, nil
}
