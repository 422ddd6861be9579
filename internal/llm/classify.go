package llm

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
	"syscall"

	"github.com/sashabaranov/go-openai"

	"github.com/ppiankov/riskpilot/internal/model"
)

// Class is the retry classification of an endpoint failure
type Class int

const (
	ClassPermanent Class = iota
	ClassTransient
)

func (c Class) String() string {
	if c == ClassTransient {
		return "transient"
	}
	return "permanent"
}

// Classify decides whether err is worth retrying.
// Transient: 429, 500, 502, 503, 504, timeouts, connection resets, model loading.
// Everything else is permanent.
func Classify(err error) Class {
	if err == nil {
		return ClassPermanent
	}

	var te *model.TransientEndpointError
	if errors.As(err, &te) {
		return ClassTransient
	}
	var pe *model.PermanentEndpointError
	if errors.As(err, &pe) {
		return ClassPermanent
	}

	if code := statusCode(err); code != 0 {
		return classifyStatus(code)
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return ClassTransient
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ClassTransient
	}
	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
		return ClassTransient
	}

	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "rate limit") || strings.Contains(msg, "too many requests") ||
		strings.Contains(msg, "currently loading") {
		return ClassTransient
	}
	return ClassPermanent
}

func classifyStatus(code int) Class {
	switch code {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return ClassTransient
	}
	return ClassPermanent
}

// statusCode extracts the HTTP status from go-openai errors (0 if none)
func statusCode(err error) int {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode
	}
	return 0
}

// classifyError wraps err in the matching endpoint error type
func classifyError(err error) error {
	code := statusCode(err)
	if Classify(err) == ClassTransient {
		return &model.TransientEndpointError{StatusCode: code, Err: err}
	}
	return &model.PermanentEndpointError{StatusCode: code, Err: err}
}
