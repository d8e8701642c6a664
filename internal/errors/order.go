package errors

var (
	ErrOrderNotFound = &DomainError{
		Kind:    KindNotFound,
		Code:    "ORDER_NOT_FOUND",
		Message: "order not found",
	}
	ErrOrderForbidden = &DomainError{
		Kind:    KindForbidden,
		Code:    "ORDER_FORBIDDEN",
		Message: "order belongs to another user",
	}
	ErrOrderInvalidState = &DomainError{
		Kind:    KindInvalidState,
		Code:    "ORDER_INVALID_STATE",
		Message: "order cannot be changed in its current state",
	}
	ErrOrderMismatch = &DomainError{
		Kind:    KindValidation,
		Code:    "ORDER_MISMATCH",
		Message: "gateway order does not match this order",
		Field:   "gatewayOrderId",
	}
	ErrSignatureInvalid = &DomainError{
		Kind:    KindSecurityRejection,
		Code:    "PAYMENT_VERIFICATION_FAILED",
		Message: "payment verification failed",
	}
	ErrWebhookSignatureInvalid = &DomainError{
		Kind:    KindSecurityRejection,
		Code:    "WEBHOOK_REJECTED",
		Message: "invalid signature",
	}
	ErrGatewayUnavailable = &DomainError{
		Kind:    KindUpstreamUnavailable,
		Code:    "GATEWAY_UNAVAILABLE",
		Message: "payment gateway is unavailable, please retry",
	}
	ErrGatewayRejected = &DomainError{
		Kind:    KindUpstreamUnavailable,
		Code:    "GATEWAY_REJECTED",
		Message: "payment gateway rejected the request",
	}
	ErrAmountOverflow = &DomainError{
		Kind:    KindValidation,
		Code:    "AMOUNT_OVERFLOW",
		Message: "amount is too large",
		Field:   "amount",
	}
)
