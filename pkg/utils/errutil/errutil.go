package errutil

import (
	"context"
	"errors"

	"github.com/getsentry/sentry-go"
	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/riskdesk/pkg/domain/model"
	"github.com/secmon-lab/riskdesk/pkg/utils/logging"
)

// Handle logs the error with a message and returns it unchanged.
// Unexpected failures (anything but a 4xx API error) are also sent to Sentry
// when a Sentry client is configured.
func Handle(ctx context.Context, err error, msg string) error {
	if err == nil {
		return nil
	}

	logger := logging.From(ctx)

	var ge *goerr.Error
	if errors.As(err, &ge) {
		logger.Error(msg,
			"error", err.Error(),
			"values", ge.Values(),
			"stack", ge.Stacks(),
		)
	} else {
		logger.Error(msg, "error", err.Error())
	}

	if shouldReport(err) {
		hub := sentry.GetHubFromContext(ctx)
		if hub == nil {
			hub = sentry.CurrentHub()
		}
		if hub.Client() != nil {
			hub.CaptureException(err)
		}
	}

	return err
}

// shouldReport excludes errors that the user caused and can fix (validation,
// conflicts, authentication)
func shouldReport(err error) bool {
	if apiErr, ok := model.AsAPIError(err); ok {
		return !apiErr.IsClientError()
	}
	return true
}
