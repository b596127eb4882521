package grpcstore

import (
	"context"

	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/vladislavdragonenkov/barflow/internal/domain"
)

// Repositories — набор хранилищ, который сервер отдаёт клиентам.
type Repositories struct {
	Menu    domain.MenuRepository
	Orders  domain.OrderRepository
	Battles domain.BattleRepository
	Promos  domain.PromoRepository
}

// Server реализует StoreServer поверх доменных репозиториев.
type Server struct {
	repos  Repositories
	logger *log.Entry
}

// NewServer конструирует сервер хранилища.
func NewServer(repos Repositories, logger *log.Entry) *Server {
	if logger == nil {
		logger = log.New().WithField("component", "store-service")
	}
	return &Server{repos: repos, logger: logger}
}

func (s *Server) ListAvailable(ctx context.Context, _ *emptyMessage) (*menuItemsResponse, error) {
	items, err := s.repos.Menu.ListAvailable(ctx)
	if err != nil {
		return nil, s.fail(methodListAvailable, err)
	}
	resp := &menuItemsResponse{Items: make([]menuItemMessage, 0, len(items))}
	for _, item := range items {
		resp.Items = append(resp.Items, toMenuItemMessage(item))
	}
	return resp, nil
}

func (s *Server) SaveMenuItem(ctx context.Context, req *saveMenuItemRequest) (*emptyMessage, error) {
	if err := s.repos.Menu.SaveMenuItem(ctx, req.Item.toDomain()); err != nil {
		return nil, s.fail(methodSaveMenuItem, err)
	}
	return &emptyMessage{}, nil
}

func (s *Server) InsertOrder(ctx context.Context, req *insertOrderRequest) (*emptyMessage, error) {
	if req.Order.ID == "" {
		return nil, status.Error(codes.InvalidArgument, domain.ErrOrderIDRequired.Error())
	}
	if err := s.repos.Orders.InsertOrder(ctx, req.Order.toDomain()); err != nil {
		return nil, s.fail(methodInsertOrder, err)
	}
	return &emptyMessage{}, nil
}

func (s *Server) InsertOrderLines(ctx context.Context, req *insertOrderLinesRequest) (*emptyMessage, error) {
	lines := make([]domain.OrderLine, 0, len(req.Lines))
	for _, line := range req.Lines {
		lines = append(lines, line.toDomain())
	}
	if err := s.repos.Orders.InsertOrderLines(ctx, lines); err != nil {
		return nil, s.fail(methodInsertOrderLines, err)
	}
	return &emptyMessage{}, nil
}

func (s *Server) UpdateOrderStatus(ctx context.Context, req *updateOrderStatusRequest) (*emptyMessage, error) {
	if req.OrderID == "" {
		return nil, status.Error(codes.InvalidArgument, domain.ErrOrderIDRequired.Error())
	}
	if err := s.repos.Orders.UpdateOrderStatus(ctx, req.OrderID, domain.OrderStatus(req.Status)); err != nil {
		return nil, s.fail(methodUpdateOrderStatus, err)
	}
	return &emptyMessage{}, nil
}

func (s *Server) ListPending(ctx context.Context, _ *emptyMessage) (*ordersResponse, error) {
	orders, err := s.repos.Orders.ListPending(ctx)
	if err != nil {
		return nil, s.fail(methodListPending, err)
	}
	resp := &ordersResponse{Orders: make([]orderMessage, 0, len(orders))}
	for _, order := range orders {
		resp.Orders = append(resp.Orders, toOrderMessage(order))
	}
	return resp, nil
}

func (s *Server) GetOrder(ctx context.Context, req *getOrderRequest) (*orderResponse, error) {
	order, err := s.repos.Orders.Get(ctx, req.OrderID)
	if err != nil {
		return nil, s.fail(methodGetOrder, err)
	}
	return &orderResponse{Order: toOrderMessage(order)}, nil
}

func (s *Server) ListActiveBattles(ctx context.Context, _ *emptyMessage) (*battlesResponse, error) {
	battles, err := s.repos.Battles.ListActiveBattles(ctx)
	if err != nil {
		return nil, s.fail(methodListActiveBattles, err)
	}
	resp := &battlesResponse{Battles: make([]battleMessage, 0, len(battles))}
	for _, b := range battles {
		resp.Battles = append(resp.Battles, toBattleMessage(b))
	}
	return resp, nil
}

func (s *Server) IncrementVote(ctx context.Context, req *incrementVoteRequest) (*emptyMessage, error) {
	if err := s.repos.Battles.IncrementVote(ctx, req.BattleID, domain.Choice(req.Choice)); err != nil {
		return nil, s.fail(methodIncrementVote, err)
	}
	return &emptyMessage{}, nil
}

func (s *Server) CreateBattle(ctx context.Context, req *createBattleRequest) (*emptyMessage, error) {
	if err := s.repos.Battles.CreateBattle(ctx, req.Battle.toDomain()); err != nil {
		return nil, s.fail(methodCreateBattle, err)
	}
	return &emptyMessage{}, nil
}

func (s *Server) ListActivePromos(ctx context.Context, _ *emptyMessage) (*promosResponse, error) {
	promos, err := s.repos.Promos.ListActivePromos(ctx)
	if err != nil {
		return nil, s.fail(methodListActivePromos, err)
	}
	resp := &promosResponse{Promos: make([]promoMessage, 0, len(promos))}
	for _, p := range promos {
		resp.Promos = append(resp.Promos, toPromoMessage(p))
	}
	return resp, nil
}

func (s *Server) SavePromo(ctx context.Context, req *savePromoRequest) (*emptyMessage, error) {
	if err := s.repos.Promos.SavePromo(ctx, req.Promo.toDomain()); err != nil {
		return nil, s.fail(methodSavePromo, err)
	}
	return &emptyMessage{}, nil
}

func (s *Server) DeletePromo(ctx context.Context, req *deletePromoRequest) (*emptyMessage, error) {
	if err := s.repos.Promos.DeletePromo(ctx, req.PromoID); err != nil {
		return nil, s.fail(methodDeletePromo, err)
	}
	return &emptyMessage{}, nil
}

// fail логирует ошибку хранилища и переводит её в статус.
func (s *Server) fail(method string, err error) error {
	st := toStatus(err)
	entry := s.logger.WithError(err).WithField("method", method)
	if status.Code(st) == codes.Internal {
		entry.Error("store operation failed")
	} else {
		entry.Debug("store operation rejected")
	}
	return st
}

var _ StoreServer = (*Server)(nil)
