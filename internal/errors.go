package internal

import "errors"

var (
	// ErrNoTransactions is returned when a non-empty document yields no transactions.
	ErrNoTransactions = errors.New("could not extract any transactions")

	ErrGuideNotFound   = errors.New("guide not found")
	ErrNotFound        = errors.New("not found")
	ErrInvalidInterval = errors.New("invalid billing interval")
	ErrInvalidAmount   = errors.New("invalid amount")
	ErrInvalidDate     = errors.New("invalid date")
	ErrMissingField    = errors.New("missing required field")

	// ErrSubscriptionExists is returned when a user already has a subscription for the merchant.
	ErrSubscriptionExists = errors.New("subscription already exists for this merchant")

	// ErrMalformedInput wraps structural problems with an uploaded file, such as a CSV without the required columns.
	ErrMalformedInput = errors.New("malformed input")
)
