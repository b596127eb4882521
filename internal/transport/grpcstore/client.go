package grpcstore

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/vladislavdragonenkov/barflow/internal/domain"
)

// Client реализует репозитории каталога, заказов, битв и промо поверх gRPC.
type Client struct {
	conn grpc.ClientConnInterface
	// closeFn задан, только если соединение открыл сам клиент.
	closeFn func() error
}

// NewClient оборачивает существующее соединение.
func NewClient(conn grpc.ClientConnInterface) *Client {
	return &Client{conn: conn}
}

// Dial открывает соединение без TLS и возвращает клиента, владеющего им.
func Dial(target string, opts ...grpc.DialOption) (*Client, error) {
	opts = append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(CodecName)),
	}, opts...)

	conn, err := grpc.NewClient(target, opts...)
	if err != nil {
		return nil, fmt.Errorf("dial store %s: %w", target, err)
	}
	return &Client{conn: conn, closeFn: conn.Close}, nil
}

// Close закрывает соединение, если его открыл Dial.
func (c *Client) Close() error {
	if c.closeFn == nil {
		return nil
	}
	return c.closeFn()
}

func (c *Client) invoke(ctx context.Context, method string, req, resp any) error {
	err := c.conn.Invoke(ctx, fullMethod(method), req, resp, grpc.CallContentSubtype(CodecName))
	return fromStatus(err)
}

func (c *Client) ListAvailable(ctx context.Context) ([]domain.MenuItem, error) {
	var resp menuItemsResponse
	if err := c.invoke(ctx, methodListAvailable, &emptyMessage{}, &resp); err != nil {
		return nil, err
	}
	items := make([]domain.MenuItem, 0, len(resp.Items))
	for _, item := range resp.Items {
		items = append(items, item.toDomain())
	}
	return items, nil
}

func (c *Client) SaveMenuItem(ctx context.Context, item domain.MenuItem) error {
	return c.invoke(ctx, methodSaveMenuItem, &saveMenuItemRequest{Item: toMenuItemMessage(item)}, &emptyMessage{})
}

func (c *Client) InsertOrder(ctx context.Context, order domain.Order) error {
	header := toOrderMessage(order)
	header.Lines = nil
	return c.invoke(ctx, methodInsertOrder, &insertOrderRequest{Order: header}, &emptyMessage{})
}

func (c *Client) InsertOrderLines(ctx context.Context, lines []domain.OrderLine) error {
	req := &insertOrderLinesRequest{Lines: make([]orderLineMessage, 0, len(lines))}
	for _, line := range lines {
		line.MenuItem = nil
		req.Lines = append(req.Lines, toOrderLineMessage(line))
	}
	return c.invoke(ctx, methodInsertOrderLines, req, &emptyMessage{})
}

func (c *Client) UpdateOrderStatus(ctx context.Context, id string, status domain.OrderStatus) error {
	return c.invoke(ctx, methodUpdateOrderStatus, &updateOrderStatusRequest{OrderID: id, Status: string(status)}, &emptyMessage{})
}

func (c *Client) ListPending(ctx context.Context) ([]domain.Order, error) {
	var resp ordersResponse
	if err := c.invoke(ctx, methodListPending, &emptyMessage{}, &resp); err != nil {
		return nil, err
	}
	orders := make([]domain.Order, 0, len(resp.Orders))
	for _, order := range resp.Orders {
		orders = append(orders, order.toDomain())
	}
	return orders, nil
}

func (c *Client) Get(ctx context.Context, id string) (domain.Order, error) {
	var resp orderResponse
	if err := c.invoke(ctx, methodGetOrder, &getOrderRequest{OrderID: id}, &resp); err != nil {
		return domain.Order{}, err
	}
	return resp.Order.toDomain(), nil
}

func (c *Client) ListActiveBattles(ctx context.Context) ([]domain.GenreBattle, error) {
	var resp battlesResponse
	if err := c.invoke(ctx, methodListActiveBattles, &emptyMessage{}, &resp); err != nil {
		return nil, err
	}
	battles := make([]domain.GenreBattle, 0, len(resp.Battles))
	for _, b := range resp.Battles {
		battles = append(battles, b.toDomain())
	}
	return battles, nil
}

func (c *Client) IncrementVote(ctx context.Context, battleID string, choice domain.Choice) error {
	return c.invoke(ctx, methodIncrementVote, &incrementVoteRequest{BattleID: battleID, Choice: string(choice)}, &emptyMessage{})
}

func (c *Client) CreateBattle(ctx context.Context, b domain.GenreBattle) error {
	return c.invoke(ctx, methodCreateBattle, &createBattleRequest{Battle: toBattleMessage(b)}, &emptyMessage{})
}

func (c *Client) ListActivePromos(ctx context.Context) ([]domain.FlashPromo, error) {
	var resp promosResponse
	if err := c.invoke(ctx, methodListActivePromos, &emptyMessage{}, &resp); err != nil {
		return nil, err
	}
	promos := make([]domain.FlashPromo, 0, len(resp.Promos))
	for _, p := range resp.Promos {
		promos = append(promos, p.toDomain())
	}
	return promos, nil
}

func (c *Client) SavePromo(ctx context.Context, p domain.FlashPromo) error {
	return c.invoke(ctx, methodSavePromo, &savePromoRequest{Promo: toPromoMessage(p)}, &emptyMessage{})
}

func (c *Client) DeletePromo(ctx context.Context, id string) error {
	return c.invoke(ctx, methodDeletePromo, &deletePromoRequest{PromoID: id}, &emptyMessage{})
}

var (
	_ domain.MenuRepository   = (*Client)(nil)
	_ domain.OrderRepository  = (*Client)(nil)
	_ domain.BattleRepository = (*Client)(nil)
	_ domain.PromoRepository  = (*Client)(nil)
)
