/**
 * @description
 * This file defines the typed business rejection returned by the settlement
 * flow. Compliance and ledger failures are expected outcomes, not system
 * errors: they carry a stable machine-readable code plus a human-readable
 * message, and callers branch on them with errors.As.
 */

package app

// RejectionCode identifies why a settlement request was refused.
type RejectionCode string

const (
	CodeInvalidAmount     RejectionCode = "INVALID_AMOUNT"
	CodeUnlicensedPartner RejectionCode = "UNLICENSED_PARTNER"
	CodeUserInactive      RejectionCode = "USER_INACTIVE"
	CodeLimitExceeded     RejectionCode = "LIMIT_EXCEEDED"
	CodeAMLRisk           RejectionCode = "AML_RISK"
	CodeInsufficientFunds RejectionCode = "INSUFFICIENT_FUNDS"
)

// RejectionError is a business-rule rejection surfaced to the caller with a
// stable code and message. It is never logged as a system error.
type RejectionError struct {
	Code    RejectionCode
	Message string
}

func (e *RejectionError) Error() string {
	return string(e.Code) + ": " + e.Message
}

func reject(code RejectionCode, message string) *RejectionError {
	return &RejectionError{Code: code, Message: message}
}
