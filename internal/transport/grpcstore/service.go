package grpcstore

import (
	"context"

	"google.golang.org/grpc"
)

// ServiceName — полное имя gRPC-сервиса хранилища.
const ServiceName = "barflow.v1.StoreService"

const (
	methodListAvailable     = "ListAvailable"
	methodSaveMenuItem      = "SaveMenuItem"
	methodInsertOrder       = "InsertOrder"
	methodInsertOrderLines  = "InsertOrderLines"
	methodUpdateOrderStatus = "UpdateOrderStatus"
	methodListPending       = "ListPending"
	methodGetOrder          = "GetOrder"
	methodListActiveBattles = "ListActiveBattles"
	methodIncrementVote     = "IncrementVote"
	methodCreateBattle      = "CreateBattle"
	methodListActivePromos  = "ListActivePromos"
	methodSavePromo         = "SavePromo"
	methodDeletePromo       = "DeletePromo"
)

// StoreServer — серверная сторона сервиса; реализуется Server.
type StoreServer interface {
	ListAvailable(context.Context, *emptyMessage) (*menuItemsResponse, error)
	SaveMenuItem(context.Context, *saveMenuItemRequest) (*emptyMessage, error)
	InsertOrder(context.Context, *insertOrderRequest) (*emptyMessage, error)
	InsertOrderLines(context.Context, *insertOrderLinesRequest) (*emptyMessage, error)
	UpdateOrderStatus(context.Context, *updateOrderStatusRequest) (*emptyMessage, error)
	ListPending(context.Context, *emptyMessage) (*ordersResponse, error)
	GetOrder(context.Context, *getOrderRequest) (*orderResponse, error)
	ListActiveBattles(context.Context, *emptyMessage) (*battlesResponse, error)
	IncrementVote(context.Context, *incrementVoteRequest) (*emptyMessage, error)
	CreateBattle(context.Context, *createBattleRequest) (*emptyMessage, error)
	ListActivePromos(context.Context, *emptyMessage) (*promosResponse, error)
	SavePromo(context.Context, *savePromoRequest) (*emptyMessage, error)
	DeletePromo(context.Context, *deletePromoRequest) (*emptyMessage, error)
}

// ServiceDesc описывает сервис без protoc: сообщения кодируются JSON-кодеком.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*StoreServer)(nil),
	Methods: []grpc.MethodDesc{
		unaryMethod(methodListAvailable, StoreServer.ListAvailable),
		unaryMethod(methodSaveMenuItem, StoreServer.SaveMenuItem),
		unaryMethod(methodInsertOrder, StoreServer.InsertOrder),
		unaryMethod(methodInsertOrderLines, StoreServer.InsertOrderLines),
		unaryMethod(methodUpdateOrderStatus, StoreServer.UpdateOrderStatus),
		unaryMethod(methodListPending, StoreServer.ListPending),
		unaryMethod(methodGetOrder, StoreServer.GetOrder),
		unaryMethod(methodListActiveBattles, StoreServer.ListActiveBattles),
		unaryMethod(methodIncrementVote, StoreServer.IncrementVote),
		unaryMethod(methodCreateBattle, StoreServer.CreateBattle),
		unaryMethod(methodListActivePromos, StoreServer.ListActivePromos),
		unaryMethod(methodSavePromo, StoreServer.SavePromo),
		unaryMethod(methodDeletePromo, StoreServer.DeletePromo),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "barflow/v1/store.json",
}

// RegisterStoreServer регистрирует реализацию на gRPC-сервере.
func RegisterStoreServer(s grpc.ServiceRegistrar, srv StoreServer) {
	s.RegisterService(&ServiceDesc, srv)
}

func fullMethod(name string) string {
	return "/" + ServiceName + "/" + name
}

// unaryMethod строит обработчик так же, как это делает protoc-gen-go-grpc.
func unaryMethod[Req, Resp any](name string, call func(StoreServer, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(StoreServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{
				Server:     srv,
				FullMethod: fullMethod(name),
			}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(StoreServer), ctx, req.(*Req))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}
