package rpc

import (
	"context"
	"errors"
	"net"
	"strings"
)

// failureClass drives how an endpoint is marked after an error.
type failureClass int

const (
	classTimeout   failureClass = iota // endpoint slow for 5 minutes
	classPermanent                     // endpoint excluded for process lifetime
	classTempSlow                      // temporarily failed and slow
	classTemporary                     // temporarily failed
	classRateLimit                     // temporarily failed; capped exponential backoff
)

var permanentMarkers = []string{
	"unauthorized",
	"api key disabled",
	"sanctioned",
	"certificate",
	"must be authenticated",
	"please specify an address",
}

var tempSlowMarkers = []string{
	"method not found",
	"the method does not exist",
	"no such host",
	"connection refused",
	"connection reset",
	"malformed response",
	"unexpected end of json",
	"invalid character",
}

var rateLimitMarkers = []string{
	"rate limit",
	"too many requests",
	"429",
	"exceeded",
}

// classify maps an error (and the HTTP status, when one was received) onto a
// failure class. First match wins: timeout, permanent, temp+slow, gas,
// rate limit, other.
func classify(err error, httpStatus int) failureClass {
	msg := strings.ToLower(err.Error())

	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) ||
		(errors.As(err, &netErr) && netErr.Timeout()) ||
		strings.Contains(msg, "timeout") ||
		strings.Contains(msg, "econnaborted") {
		return classTimeout
	}

	if httpStatus == 401 || httpStatus == 403 {
		return classPermanent
	}
	for _, marker := range permanentMarkers {
		if strings.Contains(msg, marker) {
			return classPermanent
		}
	}

	for _, marker := range tempSlowMarkers {
		if strings.Contains(msg, marker) {
			return classTempSlow
		}
	}

	// Gas errors are a property of the call, not the endpoint.
	if strings.Contains(msg, "gas") {
		return classTemporary
	}

	if httpStatus == 429 {
		return classRateLimit
	}
	for _, marker := range rateLimitMarkers {
		if strings.Contains(msg, marker) {
			return classRateLimit
		}
	}

	return classTemporary
}
