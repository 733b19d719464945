package app

import "fmt"

// DomainError is a CRM business-rule failure carrying its own HTTP
// mapping: validation rejections, permission catalog misuse, missing
// tenant-scoped rows. mapError passes it through untouched.
type DomainError struct {
	Status  int
	Code    string
	Message string
	Details any
}

func (e *DomainError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func domainError(status int, code, message string, details any) *DomainError {
	return &DomainError{
		Status:  status,
		Code:    code,
		Message: message,
		Details: details,
	}
}
