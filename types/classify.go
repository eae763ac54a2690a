package types

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
)

// maxErrorBody bounds how much of an upstream error body ends up in a message.
const maxErrorBody = 512

// Classify maps an arbitrary error onto the taxonomy. Typed errors win,
// then well-known library error types, then message content.
// The result is always a fresh value; err itself is never modified.
func Classify(err error, provider string) *Error {
	if err == nil {
		return nil
	}

	if e, ok := AsError(err); ok {
		cp := *e
		if cp.Provider == "" {
			cp.Provider = provider
		}
		return &cp
	}

	kind := classifyType(err)
	if kind == "" {
		kind = ClassifyMessage(err.Error())
	}
	return NewError(kind, err.Error()).WithCause(err).WithProvider(provider)
}

func classifyType(err error) ErrorKind {
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return KindTimeout
		}
		return KindNetwork
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return KindNetwork
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return KindNetwork
	}
	if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
		return KindNetwork
	}

	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	var b64Err base64.CorruptInputError
	if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) || errors.As(err, &b64Err) {
		return KindParseError
	}
	return ""
}

// ClassifyHTTPStatus maps an upstream HTTP status code to a kind.
func ClassifyHTTPStatus(status int) ErrorKind {
	switch {
	case status == http.StatusUnauthorized:
		return KindAuthentication
	case status == http.StatusForbidden:
		return KindAuthorization
	case status == http.StatusNotFound:
		return KindNotFound
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		return KindTimeout
	case status == http.StatusTooManyRequests:
		return KindRateLimit
	case status >= 500:
		return KindServerError
	default:
		return KindUnknown
	}
}

var messageRules = []struct {
	kind    ErrorKind
	needles []string
}{
	{KindAuthentication, []string{"401", "unauthorized", "unauthenticated", "invalid api key", "invalid_api_key", "authentication"}},
	{KindAuthorization, []string{"403", "forbidden", "permission denied", "access denied", "not authorized"}},
	{KindRateLimit, []string{"429", "rate limit", "rate_limit", "too many requests", "quota", "throttl"}},
	{KindTimeout, []string{"timeout", "timed out", "deadline exceeded"}},
	{KindNotFound, []string{"404", "not found", "not_found", "no such model"}},
	{KindNetwork, []string{"connection refused", "connection reset", "no such host", "broken pipe", "unexpected eof", ": eof", "network"}},
	{KindServerError, []string{"500", "502", "503", "504", "internal server error", "bad gateway", "service unavailable", "overloaded", "server error"}},
	{KindParseError, []string{"invalid character", "unexpected end of json", "cannot unmarshal", "parse", "malformed"}},
}

// ClassifyMessage infers a kind from free-form error text.
func ClassifyMessage(msg string) ErrorKind {
	lower := strings.ToLower(strings.TrimSpace(msg))
	// 跨边界传递后 io.EOF 只剩文本
	if lower == "eof" {
		return KindNetwork
	}
	for _, rule := range messageRules {
		for _, needle := range rule.needles {
			if strings.Contains(lower, needle) {
				return rule.kind
			}
		}
	}
	return KindUnknown
}

// NewHTTPError builds a classified error from a non-2xx upstream response.
// A 4xx status that carries no dedicated kind falls back to the body text.
func NewHTTPError(provider string, status int, body []byte) *Error {
	text := strings.TrimSpace(string(body))
	if len(text) > maxErrorBody {
		text = text[:maxErrorBody]
	}
	kind := ClassifyHTTPStatus(status)
	if kind == KindUnknown && text != "" {
		kind = ClassifyMessage(text)
	}
	msg := fmt.Sprintf("upstream returned %d", status)
	if text != "" {
		msg += ": " + text
	}
	return NewError(kind, msg).WithHTTPStatus(status).WithProvider(provider)
}
