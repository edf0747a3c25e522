package importer

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"os"

	"carousel/internal/catalog"
	"carousel/internal/services"
)

type dropSource struct{}

// NewDropSource reads selections whose SourceRef is an absolute path inside
// the drop folder.
func NewDropSource() Source {
	return &dropSource{}
}

func (s *dropSource) Open(_ context.Context, _ *catalog.Session, sel *catalog.Selection) (io.ReadCloser, error) {
	file, err := os.Open(sel.SourceRef)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, services.Wrap(services.ErrExpired, "import", "open source", "drop file vanished", err)
		}
		return nil, services.Wrap(services.ErrTransient, "import", "open source", "read drop file", err)
	}
	return file, nil
}

// Settle removes the original drop file once its bytes are safely in the
// library. Failed and expired selections keep the original so the operator
// can inspect or retry it.
func (s *dropSource) Settle(_ context.Context, _ *catalog.Session, sel *catalog.Selection, terminal catalog.SelectionStatus) error {
	switch terminal {
	case catalog.SelectionImported, catalog.SelectionDup:
	default:
		return nil
	}
	if err := os.Remove(sel.SourceRef); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}
