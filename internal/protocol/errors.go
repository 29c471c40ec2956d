package protocol

import (
	"fmt"

	"bazaar/internal/models"
)

// Error type discriminants carried on failed action results.
const (
	ErrorTypeUnknownAction        = "unknown_action"
	ErrorTypeInvalidParameters    = "invalid_parameters"
	ErrorTypeUnknownRecipient     = "unknown_recipient"
	ErrorTypeInvalidBusiness      = "invalid_business"
	ErrorTypeInvalidCustomer      = "invalid_customer"
	ErrorTypeInvalidMenuItem      = "invalid_menu_item"
	ErrorTypeInvalidMenuItemPrice = "invalid_menu_item_price"
	ErrorTypeInvalidTotalPrice    = "invalid_total_price"
	ErrorTypeInvalidProposal      = "invalid_proposal"
)

// ValidationError rejects an action with a structured, recoverable result.
// The caller may correct the parameters and retry; the failed attempt is
// still durably recorded.
type ValidationError struct {
	ErrorType    string
	Message      string
	ClosestMatch string
}

func (e *ValidationError) Error() string {
	return e.ErrorType + ": " + e.Message
}

// Detail converts the error into result content.
func (e *ValidationError) Detail() models.ErrorDetail {
	return models.ErrorDetail{
		ErrorType:    e.ErrorType,
		Message:      e.Message,
		ClosestMatch: e.ClosestMatch,
	}
}

func validationErrorf(errorType, format string, args ...interface{}) *ValidationError {
	return &ValidationError{ErrorType: errorType, Message: fmt.Sprintf(format, args...)}
}
