package clients

import (
	"context"
	"net/http"
	"strings"

	"github.com/hashicorp/go-retryablehttp"
)

// RetryMostFailures retries most client (4xx) errors, server (5xx)
// errors, and connection problems.
func RetryMostFailures(
	ctx context.Context,
	resp *http.Response,
	err error,
) (bool, error) {
	// Respect context cancellation and deadlines.
	if ctx.Err() != nil {
		return false, ctx.Err()
	}

	// Use retryablehttp's defaults for errors.
	//
	// Retryable errors are often connection issues. Non-retryable errors
	// include invalid usage, TLS verification problems, and too many
	// redirects; the only way to detect them is to match on the error
	// string, which retryablehttp does for us.
	if err != nil {
		return retryablehttp.DefaultRetryPolicy(ctx, resp, err)
	}

	switch resp.StatusCode {
	case http.StatusBadRequest,
		http.StatusUnauthorized,
		http.StatusForbidden,
		http.StatusNotFound,
		http.StatusConflict,
		http.StatusGone,
		http.StatusRequestEntityTooLarge,
		http.StatusUnprocessableEntity,
		http.StatusNotImplemented:
		return false, nil
	}

	// Retry some invalid HTTP codes.
	if resp.StatusCode == 0 || resp.StatusCode >= 600 {
		return true, nil
	}

	// Retry any other client or server errors.
	return resp.StatusCode >= 400 && resp.StatusCode <= 599, nil
}

// TransferRetryPolicy is the retry policy for signed-URL transfers.
func TransferRetryPolicy(
	ctx context.Context,
	resp *http.Response,
	err error,
) (bool, error) {
	if err != nil {
		switch {
		// Retry dial tcp <IP>: i/o timeout errors.
		//
		// Storage providers sometimes return such i/o timeout errors when
		// rate limiting without specifying the error type.
		case strings.Contains(err.Error(), "dial tcp") && strings.Contains(err.Error(), "i/o timeout"):
			return true, err
		// Retry context deadline exceeded errors, which come from the
		// per-request transfer timeout.
		case strings.Contains(err.Error(), "context deadline exceeded"):
			return true, err
		// Abort on any other transport error.
		//
		// This happens if reading the file fails, for example if it was
		// deleted mid-upload. retryablehttp's default policy for this
		// situation is to retry, which we do not want.
		default:
			return false, err
		}
	}

	return retryablehttp.ErrorPropagatedRetryPolicy(ctx, resp, err)
}
