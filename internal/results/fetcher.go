package results

import (
	"context"

	"github.com/streamlens/streamlens/internal/gateway"
)

// PageFetcher issues one results fetch for a statement, resuming from the
// supplied continuation cursor ("" on the first call). Continuation is
// cursor-based, so retrying a failed fetch can neither duplicate nor lose
// rows. *gateway.Client satisfies this directly.
type PageFetcher interface {
	GetStatementResults(ctx context.Context, handle gateway.StatementHandle, pageToken string) (gateway.ResultPage, error)
}
