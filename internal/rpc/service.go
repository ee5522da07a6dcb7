package rpc

import (
	"context"
	"errors"
	"log"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"yakssok-api/internal/coordination"
	"yakssok-api/internal/middleware"
	"yakssok-api/internal/model"
)

const ServiceName = "yakssok.v1.Coordination"

const (
	MethodCreateAppointment  = "/" + ServiceName + "/CreateAppointment"
	MethodGetAppointment     = "/" + ServiceName + "/GetAppointment"
	MethodJoinAppointment    = "/" + ServiceName + "/JoinAppointment"
	MethodListCandidateDates = "/" + ServiceName + "/ListCandidateDates"
)

// CoordinationServer is the server side of yakssok.v1.Coordination.
type CoordinationServer interface {
	CreateAppointment(context.Context, *CreateAppointmentRequest) (*Appointment, error)
	GetAppointment(context.Context, *InviteCodeRequest) (*Appointment, error)
	JoinAppointment(context.Context, *InviteCodeRequest) (*Participation, error)
	ListCandidateDates(context.Context, *InviteCodeRequest) (*CandidateDates, error)
}

func unary[Req any, Resp any](method string, call func(CoordinationServer, context.Context, *Req) (*Resp, error)) func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(CoordinationServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: method}
		return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
			return call(srv.(CoordinationServer), ctx, req.(*Req))
		})
	}
}

var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*CoordinationServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "CreateAppointment", Handler: unary(MethodCreateAppointment, CoordinationServer.CreateAppointment)},
		{MethodName: "GetAppointment", Handler: unary(MethodGetAppointment, CoordinationServer.GetAppointment)},
		{MethodName: "JoinAppointment", Handler: unary(MethodJoinAppointment, CoordinationServer.JoinAppointment)},
		{MethodName: "ListCandidateDates", Handler: unary(MethodListCandidateDates, CoordinationServer.ListCandidateDates)},
	},
	Metadata: "yakssok/v1/coordination.json",
}

// Coordination serves yakssok.v1.Coordination on top of the coordination service.
type Coordination struct {
	svc *coordination.Service
}

func NewCoordination(svc *coordination.Service) *Coordination {
	return &Coordination{svc: svc}
}

func (s *Coordination) CreateAppointment(ctx context.Context, req *CreateAppointmentRequest) (*Appointment, error) {
	in := coordination.CreateInput{
		Name:            req.Name,
		CreatorID:       middleware.UserID(ctx),
		MaxParticipants: req.MaxParticipants,
	}
	for _, s := range req.CandidateDates {
		d, err := coordination.ParseDay(s)
		if err != nil {
			return nil, toStatus(err)
		}
		in.CandidateDates = append(in.CandidateDates, d)
	}
	for _, f := range []struct {
		raw string
		dst **time.Time
	}{
		{req.StartDate, &in.StartDate},
		{req.EndDate, &in.EndDate},
	} {
		if f.raw == "" {
			continue
		}
		d, err := coordination.ParseDay(f.raw)
		if err != nil {
			return nil, toStatus(err)
		}
		*f.dst = &d
	}

	detail, err := s.svc.CreateAppointment(ctx, in)
	if err != nil {
		return nil, toStatus(err)
	}
	return toAppointment(&detail.Appointment, detail.CandidateDates), nil
}

func (s *Coordination) GetAppointment(ctx context.Context, req *InviteCodeRequest) (*Appointment, error) {
	detail, err := s.svc.AppointmentByInviteCode(ctx, req.InviteCode)
	if err != nil {
		return nil, toStatus(err)
	}
	return toAppointment(&detail.Appointment, detail.CandidateDates), nil
}

func (s *Coordination) JoinAppointment(ctx context.Context, req *InviteCodeRequest) (*Participation, error) {
	p, err := s.svc.JoinAppointment(ctx, req.InviteCode, middleware.UserID(ctx))
	if err != nil {
		return nil, toStatus(err)
	}
	return &Participation{
		ID:            p.ID,
		UserID:        p.UserID,
		AppointmentID: p.AppointmentID,
		Status:        string(p.Status),
		UpdatedAt:     p.UpdatedAt,
	}, nil
}

func (s *Coordination) ListCandidateDates(ctx context.Context, req *InviteCodeRequest) (*CandidateDates, error) {
	dates, err := s.svc.CandidateDatesByInviteCode(ctx, req.InviteCode)
	if err != nil {
		return nil, toStatus(err)
	}
	out := &CandidateDates{Dates: make([]CandidateDate, len(dates))}
	for i, d := range dates {
		out.Dates[i] = CandidateDate{ID: d.ID, Date: d.Date.Format(coordination.DayLayout)}
	}
	return out, nil
}

func toAppointment(a *model.Appointment, dates []model.AppointmentDate) *Appointment {
	out := &Appointment{
		ID:              a.ID,
		Name:            a.Name,
		CreatorID:       a.CreatorID,
		MaxParticipants: a.MaxParticipants,
		Status:          string(a.Status),
		InviteCode:      a.InviteCode,
		CreatedAt:       a.CreatedAt,
	}
	for _, d := range dates {
		out.CandidateDates = append(out.CandidateDates, d.Date.Format(coordination.DayLayout))
	}
	return out
}

var statusCodes = []struct {
	err  error
	code codes.Code
}{
	{coordination.ErrInvalidInput, codes.InvalidArgument},
	{coordination.ErrInvalidDateRange, codes.InvalidArgument},
	{coordination.ErrDateRangeTooLong, codes.InvalidArgument},
	{coordination.ErrNotFound, codes.NotFound},
	{coordination.ErrNotJoinable, codes.FailedPrecondition},
	{coordination.ErrInvalidTransition, codes.FailedPrecondition},
	{coordination.ErrAlreadyJoined, codes.AlreadyExists},
	{coordination.ErrCapacityExceeded, codes.ResourceExhausted},
	{coordination.ErrInviteCodeExhausted, codes.ResourceExhausted},
	{coordination.ErrNotParticipant, codes.PermissionDenied},
	{coordination.ErrForbidden, codes.PermissionDenied},
}

func toStatus(err error) error {
	for _, s := range statusCodes {
		if errors.Is(err, s.err) {
			return status.Error(s.code, err.Error())
		}
	}
	log.Printf("rpc: %v", err)
	return status.Error(codes.Internal, "internal error")
}
