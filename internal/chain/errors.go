package chain

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum/rpc"
)

// ErrResultSizeExceeded is returned when the node refuses a query because too many items match.
// It is a signal to narrow the query, not a failure.
var ErrResultSizeExceeded = errors.New("result size exceeded")

// sizeLimitMarkers are the node error fragments that mean the query matched too many items.
// smartBCH misspells "candidate" in some versions.
var sizeLimitMarkers = []string{
	"too many results",
	"too many candidate",
	"too many logs",
	"candidate entries",
	"candidicate entries",
	"query returned more than",
	"response size exceeded",
}

// rateLimitMarkers identify throttling replies. They are transient and keep the window.
var rateLimitMarkers = []string{
	"too many requests",
	"rate limit",
}

// ClassifyError translates node-specific error text into ErrResultSizeExceeded. Every other
// error is returned unchanged.
func ClassifyError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if isRateLimit(err) {
		return err
	}
	if isSizeLimit(err) {
		return fmt.Errorf("%w: %v", ErrResultSizeExceeded, err)
	}
	return err
}

func isSizeLimit(err error) bool {
	msg := strings.ToLower(err.Error())
	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) {
		msg = strings.ToLower(rpcErr.Error())
	}
	for _, marker := range sizeLimitMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

func isRateLimit(err error) bool {
	var httpErr rpc.HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode == http.StatusTooManyRequests
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range rateLimitMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
