package biz

import (
	"fmt"

	"github.com/kart-io/docqa/pkg/errors"
)

// PartialIngestionError reports an ingestion that wrote vectors but failed afterwards.
// It unwraps to errors.ErrPartialIngestion and to the underlying cause.
type PartialIngestionError struct {
	DocumentID string
	VectorIDs  []string

	// RolledBack is true when the vectors were deleted again.
	RolledBack bool
	// Queued is true when deletion failed and the vectors were queued for reconciliation.
	Queued bool

	Err error
}

func (e *PartialIngestionError) Error() string {
	state := "lost"
	switch {
	case e.RolledBack:
		state = "rolled back"
	case e.Queued:
		state = "queued for reconciliation"
	}
	return fmt.Sprintf("partial ingestion of %s: %d vectors %s: %v", e.DocumentID, len(e.VectorIDs), state, e.Err)
}

func (e *PartialIngestionError) Unwrap() []error {
	return []error{errors.ErrPartialIngestion, e.Err}
}
