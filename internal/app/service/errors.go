package service

import "errors"

var (
	// ErrNotFound is returned when a token does not resolve to any target.
	ErrNotFound = errors.New("not found")
	// ErrTokenExhausted is returned when every token attempt collided.
	ErrTokenExhausted = errors.New("token generation exhausted")
	// ErrInvalidRange is returned for malformed or inverted date/day ranges.
	ErrInvalidRange = errors.New("invalid range")
	// ErrInvalidIdentifier is returned for non-numeric or unknown identifiers.
	ErrInvalidIdentifier = errors.New("invalid identifier")
	// ErrEmptyResult is returned when a valid query matches no rows.
	ErrEmptyResult = errors.New("no data")
	// ErrDeliveryTargetUnresolved is returned when no report destination is known.
	ErrDeliveryTargetUnresolved = errors.New("delivery target unresolved")
	// ErrInvalidRating is returned for rating actions that fail validation.
	ErrInvalidRating = errors.New("invalid rating")
	// ErrInvalidPublish is returned for publish requests that fail validation.
	ErrInvalidPublish = errors.New("invalid publish request")
)
