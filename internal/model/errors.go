package model

import "errors"

var (
	// ErrFetch means the wallet history could not be retrieved at all.
	ErrFetch = errors.New("transaction history unavailable")
	// ErrUnknownContract marks a transaction not sent to a known router.
	ErrUnknownContract = errors.New("unknown contract")
	// ErrMalformedCalldata marks call data that does not match the router layout.
	ErrMalformedCalldata = errors.New("malformed calldata")
	// ErrMetadataUnavailable marks a failed symbol or pool lookup.
	ErrMetadataUnavailable = errors.New("metadata unavailable")
)
