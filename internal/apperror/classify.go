package apperror

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"syscall"

	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const maxMessageLen = 500

type signature struct {
	kind     *Error
	patterns []string
}

// Order matters: quota is a kind of resource exhaustion and must win over rate limit,
// credentials problems often read like invalid arguments.
var signatures = []signature{
	{ErrQuota, []string{"quota", "gemini_quota"}},
	{ErrRateLimit, []string{"rate limit", "ratelimit", "rate_limit", "too many requests", "resource exhausted", "resource_exhausted", "429"}},
	{ErrAuth, []string{"api key", "api_key", "apikey", "unauthenticated", "unauthorized", "permission denied", "permission_denied", "credentials", "401", "403"}},
	{ErrOverloaded, []string{"overloaded", "unavailable", "503", "502", "500 internal", "bad gateway", "internal server error", "server error"}},
	{ErrTimeout, []string{"etimedout", "timeout", "timed out", "deadline exceeded", "deadline_exceeded"}},
	{ErrNetwork, []string{"econnreset", "econnrefused", "enotfound", "connection refused", "connection reset", "no such host", "broken pipe", "network"}},
	{ErrInvalidInput, []string{"invalid input", "invalid argument", "invalid_argument", "invalid source", "bad request", "400"}},
	{ErrParse, []string{"parse error", "failed to parse", "unexpected end of json", "invalid character"}},
}

// Classify maps any error to exactly one taxonomy entry. It is the single place where
// provider, transport and parse failures are turned into retryable or fatal kinds.
func Classify(err error) *Error {
	if err == nil {
		return nil
	}

	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr
	}

	return Wrap(err, kindOf(err)).withMessage(err.Error())
}

// Retryable reports whether a terminal job error should offer resumption.
func Retryable(err error) bool {
	if c := Classify(err); c != nil {
		return c.Retryable
	}
	return false
}

func (e *Error) withMessage(msg string) *Error {
	if len(msg) > maxMessageLen {
		msg = msg[:maxMessageLen] + "..."
	}
	e.Message = msg
	return e
}

func kindOf(err error) *Error {
	switch {
	case errors.Is(err, context.Canceled):
		return ErrCancelled
	case errors.Is(err, context.DeadlineExceeded):
		return ErrTimeout
	}

	var invalid interface{ InvalidInput() bool }
	if errors.As(err, &invalid) && invalid.InvalidInput() {
		return ErrInvalidInput
	}

	var parse interface{ ParseFailure() bool }
	if errors.As(err, &parse) && parse.ParseFailure() {
		return ErrParse
	}

	if kind := fromGRPC(err); kind != nil {
		return kind
	}
	if kind := fromGoogleAPI(err); kind != nil {
		return kind
	}
	if kind := fromNet(err); kind != nil {
		return kind
	}

	return fromMessage(err.Error())
}

func fromGRPC(err error) *Error {
	var carrier interface{ GRPCStatus() *status.Status }
	if !errors.As(err, &carrier) {
		return nil
	}
	s, ok := status.FromError(err)
	if !ok {
		return nil
	}
	msg := strings.ToLower(s.Message())
	switch s.Code() {
	case codes.ResourceExhausted:
		if strings.Contains(msg, "quota") {
			return ErrQuota
		}
		return ErrRateLimit
	case codes.Unavailable, codes.Internal, codes.Aborted:
		return ErrOverloaded
	case codes.DeadlineExceeded:
		return ErrTimeout
	case codes.Unauthenticated, codes.PermissionDenied:
		return ErrAuth
	case codes.InvalidArgument, codes.FailedPrecondition, codes.NotFound:
		if strings.Contains(msg, "api key") {
			return ErrAuth
		}
		return ErrInvalidInput
	case codes.Canceled:
		return ErrCancelled
	}
	return nil
}

func fromGoogleAPI(err error) *Error {
	var gerr *googleapi.Error
	if !errors.As(err, &gerr) {
		return nil
	}
	msg := strings.ToLower(gerr.Message)
	switch {
	case gerr.Code == http.StatusTooManyRequests:
		if strings.Contains(msg, "quota") {
			return ErrQuota
		}
		return ErrRateLimit
	case gerr.Code == http.StatusUnauthorized || gerr.Code == http.StatusForbidden:
		return ErrAuth
	case gerr.Code == http.StatusBadRequest:
		if strings.Contains(msg, "api key") {
			return ErrAuth
		}
		return ErrInvalidInput
	case gerr.Code == http.StatusGatewayTimeout:
		return ErrTimeout
	case gerr.Code >= 500:
		return ErrOverloaded
	}
	return nil
}

func fromNet(err error) *Error {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrTimeout
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return ErrNetwork
	}
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.EPIPE) {
		return ErrNetwork
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return ErrNetwork
	}
	return nil
}

func fromMessage(msg string) *Error {
	msg = strings.ToLower(msg)
	for _, sig := range signatures {
		for _, p := range sig.patterns {
			if strings.Contains(msg, p) {
				return sig.kind
			}
		}
	}
	return ErrUnknown
}
