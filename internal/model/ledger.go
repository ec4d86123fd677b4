package model

// Debit описывает списание с кошелька. Если Order задан, заказ сохраняется
// в той же транзакции, что и списание, а купон заказа расходуется.
type Debit struct {
	UserID      string
	AmountCents int64
	Order       *Order
	Note        string
}

// Credit описывает зачисление на кошелёк. Если задан RefundOrderID, зачисление
// является возвратом по заказу: заказ помечается возвращённым и получает RefundStatus.
type Credit struct {
	UserID        string
	AmountCents   int64
	Kind          TransactionKind
	Method        string
	RefundOrderID string
	RefundStatus  OrderStatus
	Note          string
}

// Adjustment описывает ручную корректировку баланса администратором.
type Adjustment struct {
	UserID     string
	DeltaCents int64
	Note       string
}
