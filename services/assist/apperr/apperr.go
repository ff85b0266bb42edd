// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package apperr defines the error taxonomy shared by every gateway
// component and its mapping onto HTTP status codes.
//
// # Description
//
// Six kinds of failure are distinguished:
//
//   - Validation: missing or malformed caller input (400)
//   - Unauthorized: credentials did not match (401)
//   - Ownership: deviceId does not own the record (403)
//   - NotFound: the record does not exist (404)
//   - Upstream: a dependency failed (provider status, else 408/503/502/500)
//   - Persistence: the key-value store failed (500)
//
// Validation and ownership errors are raised before any store or provider
// call is made. Handlers translate an error chain exactly once via Status
// and ClientMessage.
package apperr

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"syscall"
)

// =============================================================================
// Kinds
// =============================================================================

// Kind classifies an Error.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindOwnership
	KindNotFound
	KindUpstream
	KindPersistence
	KindUnauthorized
)

// String returns the metrics label for the kind.
func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindOwnership:
		return "ownership"
	case KindNotFound:
		return "not_found"
	case KindUpstream:
		return "upstream"
	case KindPersistence:
		return "persistence"
	case KindUnauthorized:
		return "unauthorized"
	default:
		return "internal"
	}
}

// UpstreamFailure refines KindUpstream by transport failure mode.
type UpstreamFailure int

const (
	// UpstreamOther is any dependency failure without a better match.
	UpstreamOther UpstreamFailure = iota
	// UpstreamTimeout means the call exceeded its deadline.
	UpstreamTimeout
	// UpstreamConnectivity means dial, DNS, or connection refused.
	UpstreamConnectivity
	// UpstreamStatus means the dependency answered with a non-success status.
	UpstreamStatus
	// UpstreamMalformed means the dependency answered 2xx with an unusable body.
	UpstreamMalformed
)

// String returns the metrics label for the failure mode.
func (f UpstreamFailure) String() string {
	switch f {
	case UpstreamTimeout:
		return "timeout"
	case UpstreamConnectivity:
		return "connectivity"
	case UpstreamStatus:
		return "status"
	case UpstreamMalformed:
		return "malformed"
	default:
		return "other"
	}
}

// =============================================================================
// Error
// =============================================================================

// Error is the concrete error type carried through the gateway.
//
// # Fields
//
//   - Kind: taxonomy bucket, drives the HTTP status
//   - Message: client-safe text placed in the {"error": ...} body
//   - Service: dependency name for upstream errors ("together", "plant.id", ...)
//   - Failure: upstream failure mode
//   - StatusCode: provider status when Failure == UpstreamStatus
//   - Details: provider error body, forwarded on routes that expose it
//   - Err: wrapped cause, never shown to clients
type Error struct {
	Kind       Kind
	Message    string
	Service    string
	Failure    UpstreamFailure
	StatusCode int
	Details    any
	Err        error
}

func (e *Error) Error() string {
	switch {
	case e.Err != nil && e.Service != "":
		return fmt.Sprintf("%s: %s: %v", e.Service, e.Message, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	default:
		return e.Message
	}
}

func (e *Error) Unwrap() error { return e.Err }

// =============================================================================
// Constructors
// =============================================================================

// Validation reports malformed caller input.
func Validation(msg string) *Error {
	return &Error{Kind: KindValidation, Message: msg}
}

// Ownership reports a deviceId that does not own the addressed record.
func Ownership(msg string) *Error {
	return &Error{Kind: KindOwnership, Message: msg}
}

// Unauthorized reports rejected credentials.
func Unauthorized(msg string) *Error {
	return &Error{Kind: KindUnauthorized, Message: msg}
}

// NotFound reports an absent record.
func NotFound(msg string) *Error {
	return &Error{Kind: KindNotFound, Message: msg}
}

// Persistence wraps a key-value store failure.
func Persistence(msg string, err error) *Error {
	return &Error{Kind: KindPersistence, Message: msg, Err: err}
}

// Internal wraps an unexpected failure.
func Internal(msg string, err error) *Error {
	return &Error{Kind: KindInternal, Message: msg, Err: err}
}

// Upstream wraps a transport-level failure talking to service and
// classifies it as timeout, connectivity, or other.
//
// # Examples
//
//	resp, err := client.R().SetContext(ctx).Post("/identify")
//	if err != nil {
//	    return nil, apperr.Upstream("plant.id", "Plant identification failed", err)
//	}
func Upstream(service, msg string, err error) *Error {
	return &Error{
		Kind:    KindUpstream,
		Message: msg,
		Service: service,
		Failure: Classify(err),
		Err:     err,
	}
}

// UpstreamHTTP reports a non-success status returned by service.
func UpstreamHTTP(service, msg string, status int, details any) *Error {
	return &Error{
		Kind:       KindUpstream,
		Message:    msg,
		Service:    service,
		Failure:    UpstreamStatus,
		StatusCode: status,
		Details:    details,
	}
}

// UpstreamBody reports a 2xx response whose body could not be used.
func UpstreamBody(service, msg string, err error) *Error {
	return &Error{
		Kind:    KindUpstream,
		Message: msg,
		Service: service,
		Failure: UpstreamMalformed,
		Err:     err,
	}
}

// =============================================================================
// Inspection
// =============================================================================

// As extracts the first *Error in err's chain.
func As(err error) (*Error, bool) {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// KindOf returns the kind of err, KindInternal if it carries none.
func KindOf(err error) Kind {
	if appErr, ok := As(err); ok {
		return appErr.Kind
	}
	return KindInternal
}

// Status maps err onto an HTTP status code.
func Status(err error) int {
	appErr, ok := As(err)
	if !ok {
		return http.StatusInternalServerError
	}
	switch appErr.Kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindOwnership:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindUpstream:
		return upstreamStatus(appErr)
	default:
		return http.StatusInternalServerError
	}
}

func upstreamStatus(e *Error) int {
	switch e.Failure {
	case UpstreamStatus:
		if e.StatusCode >= 400 && e.StatusCode <= 599 {
			return e.StatusCode
		}
		return http.StatusInternalServerError
	case UpstreamTimeout:
		return http.StatusRequestTimeout
	case UpstreamConnectivity:
		return http.StatusServiceUnavailable
	case UpstreamMalformed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// ClientMessage returns the client-safe message for err.
func ClientMessage(err error) string {
	if appErr, ok := As(err); ok && appErr.Message != "" {
		return appErr.Message
	}
	return "Internal server error"
}

// Classify inspects a transport error and reports its failure mode.
//
// # Description
//
// Deadline expiry and net.Error timeouts are UpstreamTimeout. DNS
// failures, refused or reset connections, and dial errors are
// UpstreamConnectivity. Everything else is UpstreamOther.
func Classify(err error) UpstreamFailure {
	if err == nil {
		return UpstreamOther
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return UpstreamTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return UpstreamTimeout
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return UpstreamConnectivity
	}
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EHOSTUNREACH) || errors.Is(err, syscall.ENETUNREACH) {
		return UpstreamConnectivity
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return UpstreamConnectivity
	}
	return UpstreamOther
}
