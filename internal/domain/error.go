package domain

import "errors"

var (
	// Common domain errors
	ErrNotFound        = errors.New("entity not found")
	ErrAlreadyExists   = errors.New("entity already exists")
	ErrInvalidArgument = errors.New("invalid argument")
	ErrForbidden       = errors.New("operation not permitted for this role")

	// X API errors
	ErrCredentialUnauthorized = errors.New("x credential unauthorized")
	ErrRateLimited            = errors.New("x credential rate limited")
	ErrNoCredentials          = errors.New("no authorized x credentials")
	ErrUpstreamUnavailable    = errors.New("x api unavailable")

	// Access requests
	ErrNoPendingRequest = errors.New("no pending access request")
)
