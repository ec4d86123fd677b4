package model

import "errors"

var (
	// ErrInsufficientFunds возвращается, если сумма списания превышает баланс.
	ErrInsufficientFunds = errors.New("insufficient funds")
	// ErrQuantityOutOfRange возвращается, если количество вне допустимого диапазона услуги.
	ErrQuantityOutOfRange = errors.New("quantity out of range")
	// ErrServiceNotFound возвращается, если услуги нет в текущем каталоге.
	ErrServiceNotFound = errors.New("service not found")
	// ErrInvalidAdjustment возвращается, если корректировка увела бы баланс в минус.
	ErrInvalidAdjustment = errors.New("invalid balance adjustment")
	// ErrCouponInvalid возвращается для неизвестного, истёкшего или исчерпанного купона.
	ErrCouponInvalid = errors.New("coupon invalid")
	// ErrDuplicateRefund возвращается при повторном возврате средств по заказу.
	ErrDuplicateRefund = errors.New("order already refunded")
	ErrUserNotFound    = errors.New("user not found")
	ErrUserExists      = errors.New("user already exists")
	ErrUserBanned      = errors.New("user is banned")
	ErrOrderNotFound   = errors.New("order not found")
	// ErrRefillNotAllowed возвращается, если заказ не поддерживает докрутку в текущем состоянии.
	ErrRefillNotAllowed    = errors.New("refill not allowed")
	ErrInvalidStatus       = errors.New("invalid status")
	ErrInvalidAmount       = errors.New("invalid amount")
	ErrProviderNotFound    = errors.New("provider not found")
	ErrCouponExists        = errors.New("coupon already exists")
	ErrDripfeedUnsupported = errors.New("service does not support drip-feed")
	// ErrInvalidLink возвращается, если ссылка на продвигаемый объект не является http(s)-адресом.
	ErrInvalidLink = errors.New("invalid link")
)
