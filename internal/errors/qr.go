package errors

var (
	// ErrInvalidToken is the only error a QR token check ever surfaces.
	ErrInvalidToken = &DomainError{
		Kind:    KindSecurityRejection,
		Code:    "INVALID_QR",
		Message: "invalid or expired QR code",
	}
	ErrBillNotFound = &DomainError{
		Kind:    KindNotFound,
		Code:    "BILL_NOT_FOUND",
		Message: "bill not found",
	}
	ErrBillExpired = &DomainError{
		Kind:    KindInvalidState,
		Code:    "BILL_EXPIRED",
		Message: "bill has expired",
	}
	ErrBillAlreadyUsed = &DomainError{
		Kind:    KindConflict,
		Code:    "BILL_ALREADY_USED",
		Message: "bill has already been paid",
	}
	ErrBillCancelled = &DomainError{
		Kind:    KindInvalidState,
		Code:    "BILL_CANCELLED",
		Message: "bill has been cancelled",
	}
	ErrBillNotActive = &DomainError{
		Kind:    KindInvalidState,
		Code:    "BILL_NOT_ACTIVE",
		Message: "bill is no longer active",
	}
	ErrSelfPayment = &DomainError{
		Kind:    KindForbidden,
		Code:    "SELF_PAYMENT",
		Message: "partners cannot pay their own bills",
	}
)
