package state

import (
	"github.com/google/uuid"
)

// OrderManager manages order records. Orders are never deleted; terminal
// orders stay in the map with EscrowHeld zero.
type OrderManager struct {
	orders      map[int64]*Order
	nextOrderID int64
}

func NewOrderManager() *OrderManager {
	return &OrderManager{
		orders:      make(map[int64]*Order),
		nextOrderID: 1,
	}
}

// GetOrder returns existing order or nil
func (om *OrderManager) GetOrder(orderID int64) *Order {
	return om.orders[orderID]
}

// CreateOrder assigns the next order id and records a new Created order
func (om *OrderManager) CreateOrder(seller uuid.UUID, amount int64, feeBps int64, description string, sequence int64) *Order {
	order := &Order{
		OrderID:     om.nextOrderID,
		Seller:      seller,
		Amount:      amount,
		FeeBps:      feeBps,
		Description: description,
		Status:      OrderStatusCreated,
		EscrowHeld:  amount,
		CreatedSeq:  sequence,
		UpdatedSeq:  sequence,
		Version:     0,
	}

	om.orders[order.OrderID] = order
	om.nextOrderID++

	return order
}

// TotalEscrowHeld sums custody attributable to all orders.
// Terminal orders contribute zero.
func (om *OrderManager) TotalEscrowHeld() int64 {
	var total int64
	for _, order := range om.orders {
		total += order.EscrowHeld
	}
	return total
}

// CountByStatus returns the number of orders in the given status
func (om *OrderManager) CountByStatus(status OrderStatus) int64 {
	var count int64
	for _, order := range om.orders {
		if order.Status == status {
			count++
		}
	}
	return count
}

// GetAllOrders returns all orders (for snapshot creation)
func (om *OrderManager) GetAllOrders() []*Order {
	result := make([]*Order, 0, len(om.orders))
	for _, order := range om.orders {
		result = append(result, order)
	}
	return result
}

// GetParticipantOrders returns all orders where the party is seller or buyer
func (om *OrderManager) GetParticipantOrders(party uuid.UUID) []*Order {
	result := make([]*Order, 0)
	for _, order := range om.orders {
		if order.IsParticipant(party) {
			result = append(result, order)
		}
	}
	return result
}

// SetOrder directly sets an order (used for snapshot restore)
func (om *OrderManager) SetOrder(order *Order) {
	om.orders[order.OrderID] = order
}

// NextOrderID returns the next id to be assigned (for snapshot creation)
func (om *OrderManager) NextOrderID() int64 {
	return om.nextOrderID
}

// SetNextOrderID initializes the id counter (used for snapshot restore)
func (om *OrderManager) SetNextOrderID(next int64) {
	om.nextOrderID = next
}
