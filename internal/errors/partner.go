package errors

var (
	ErrPartnerNotFound = &DomainError{
		Kind:    KindNotFound,
		Code:    "PARTNER_NOT_FOUND",
		Message: "partner not found",
	}
	ErrPartnerInactive = &DomainError{
		Kind:    KindInvalidState,
		Code:    "PARTNER_INACTIVE",
		Message: "merchant is not accepting payments",
	}
	ErrPartnerRequired = &DomainError{
		Kind:    KindForbidden,
		Code:    "PARTNER_REQUIRED",
		Message: "a partner profile is required",
	}
)
