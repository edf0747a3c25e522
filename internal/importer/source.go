package importer

import (
	"context"
	"io"

	"carousel/internal/catalog"
)

// Source opens the payload stream for a claimed selection. Implementations
// map their transport failures onto the services sentinels so the worker
// can classify them without knowing the transport.
type Source interface {
	// Open returns the payload bytes for the selection. The caller closes
	// the reader.
	Open(ctx context.Context, session *catalog.Session, sel *catalog.Selection) (io.ReadCloser, error)

	// Settle runs after the selection reaches a terminal status, giving the
	// source a chance to retire its original artifact. Errors are logged by
	// the caller, never retried.
	Settle(ctx context.Context, session *catalog.Session, sel *catalog.Selection, terminal catalog.SelectionStatus) error
}
