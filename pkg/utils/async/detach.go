package async

import (
	"context"

	"github.com/secmon-lab/riskdesk/pkg/utils/logging"
)

// Detach returns a background context that keeps the logger of ctx but is
// never cancelled with it. Work started on it outlives its caller.
func Detach(ctx context.Context) context.Context {
	bgCtx := context.Background()
	if logger := logging.From(ctx); logger != nil {
		bgCtx = logging.With(bgCtx, logger)
	}
	return bgCtx
}
