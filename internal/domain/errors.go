package domain

import "fmt"

type FetchErrorKind string

const (
	FetchNetwork   FetchErrorKind = "network"
	FetchServer    FetchErrorKind = "server"
	FetchMalformed FetchErrorKind = "malformed"
)

// FetchError is returned by InventoryClient.FetchEligibleAds
type FetchError struct {
	Kind FetchErrorKind
	// Code is the HTTP status for FetchServer, zero otherwise
	Code int
	Err  error
}

func NetworkError(err error) *FetchError {
	return &FetchError{Kind: FetchNetwork, Err: err}
}

func ServerError(code int) *FetchError {
	return &FetchError{Kind: FetchServer, Code: code}
}

func MalformedError(err error) *FetchError {
	return &FetchError{Kind: FetchMalformed, Err: err}
}

func (e *FetchError) Error() string {
	switch {
	case e.Kind == FetchServer:
		return fmt.Sprintf("inventory server error: status %d", e.Code)
	case e.Err != nil:
		return fmt.Sprintf("inventory %s error: %v", e.Kind, e.Err)
	default:
		return fmt.Sprintf("inventory %s error", e.Kind)
	}
}

func (e *FetchError) Unwrap() error {
	return e.Err
}
