package grpc

import (
	"context"

	"google.golang.org/grpc"
)

const ServiceName = "clinicsched.v1.SchedulingService"

// SchedulingServiceServer is the server API of the scheduling service.
type SchedulingServiceServer interface {
	BookAppointment(context.Context, *BookAppointmentRequest) (*BookAppointmentResponse, error)
	RescheduleAppointment(context.Context, *RescheduleAppointmentRequest) (*AppointmentResponse, error)
	UpdateAppointmentStatus(context.Context, *UpdateAppointmentStatusRequest) (*AppointmentResponse, error)
	DeleteAppointment(context.Context, *DeleteAppointmentRequest) (*Empty, error)
	CancelSeries(context.Context, *CancelSeriesRequest) (*CancelSeriesResponse, error)
	ListAppointments(context.Context, *ListAppointmentsRequest) (*ListAppointmentsResponse, error)
	PreviewSeries(context.Context, *PreviewSeriesRequest) (*PreviewSeriesResponse, error)

	ListAvailability(context.Context, *ListAvailabilityRequest) (*ListAvailabilityResponse, error)
	CreateAvailability(context.Context, *CreateAvailabilityRequest) (*AvailabilityResponse, error)
	UpdateAvailability(context.Context, *UpdateAvailabilityRequest) (*AvailabilityResponse, error)
	DeleteAvailability(context.Context, *DeleteAvailabilityRequest) (*Empty, error)

	ListBlocks(context.Context, *ListBlocksRequest) (*ListBlocksResponse, error)
	CreateBlock(context.Context, *CreateBlockRequest) (*BlockResponse, error)
	UpdateBlock(context.Context, *UpdateBlockRequest) (*BlockResponse, error)
	DeleteBlock(context.Context, *DeleteBlockRequest) (*Empty, error)
}

func RegisterSchedulingServiceServer(s grpc.ServiceRegistrar, srv SchedulingServiceServer) {
	s.RegisterService(&schedulingServiceDesc, srv)
}

var schedulingServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*SchedulingServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("BookAppointment", SchedulingServiceServer.BookAppointment),
		unary("RescheduleAppointment", SchedulingServiceServer.RescheduleAppointment),
		unary("UpdateAppointmentStatus", SchedulingServiceServer.UpdateAppointmentStatus),
		unary("DeleteAppointment", SchedulingServiceServer.DeleteAppointment),
		unary("CancelSeries", SchedulingServiceServer.CancelSeries),
		unary("ListAppointments", SchedulingServiceServer.ListAppointments),
		unary("PreviewSeries", SchedulingServiceServer.PreviewSeries),
		unary("ListAvailability", SchedulingServiceServer.ListAvailability),
		unary("CreateAvailability", SchedulingServiceServer.CreateAvailability),
		unary("UpdateAvailability", SchedulingServiceServer.UpdateAvailability),
		unary("DeleteAvailability", SchedulingServiceServer.DeleteAvailability),
		unary("ListBlocks", SchedulingServiceServer.ListBlocks),
		unary("CreateBlock", SchedulingServiceServer.CreateBlock),
		unary("UpdateBlock", SchedulingServiceServer.UpdateBlock),
		unary("DeleteBlock", SchedulingServiceServer.DeleteBlock),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "clinicsched/v1/scheduling.json",
}

// FullMethod returns the wire name of a method of the scheduling service.
func FullMethod(method string) string {
	return "/" + ServiceName + "/" + method
}

func unary[Req, Resp any](method string, call func(SchedulingServiceServer, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(SchedulingServiceServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: FullMethod(method)}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(SchedulingServiceServer), ctx, req.(*Req))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}
