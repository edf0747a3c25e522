package importer

import (
	"context"
	"io"

	"carousel/internal/catalog"
	"carousel/internal/services"
)

// Downloader streams one picker item. Satisfied by picker.Client.
type Downloader interface {
	Download(ctx context.Context, pickerSessionID, sourceRef string) (io.ReadCloser, error)
}

type pickerSource struct {
	client Downloader
}

// NewPickerSource adapts a picker download client into a Source.
func NewPickerSource(client Downloader) Source {
	return &pickerSource{client: client}
}

func (s *pickerSource) Open(ctx context.Context, session *catalog.Session, sel *catalog.Selection) (io.ReadCloser, error) {
	if s.client == nil {
		return nil, services.Wrap(services.ErrConfiguration, "import", "open source", "picker client not configured", nil)
	}
	return s.client.Download(ctx, session.PickerSessionID, sel.SourceRef)
}

// Settle is a no-op: the picker retains its own copies and expires them
// server-side.
func (s *pickerSource) Settle(context.Context, *catalog.Session, *catalog.Selection, catalog.SelectionStatus) error {
	return nil
}
