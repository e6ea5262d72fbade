package broker

import "context"

// Broker is the order-execution contract. The paper broker is the
// default implementation; a live adapter would satisfy the same
// interface.
type Broker interface {
	PlaceOrder(ctx context.Context, req OrderRequest) (OrderAck, error)
	Cancel(ctx context.Context, orderID string) error
	GetOrder(ctx context.Context, orderID string) (Order, error)
	GetPositions(ctx context.Context) ([]Holding, error)
	GetAccount(ctx context.Context) (Account, error)
}
