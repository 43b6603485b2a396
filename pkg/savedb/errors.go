package savedb

import (
	"errors"
	"fmt"

	"github.com/crystal-mush/palsave/pkg/gvas"
)

// ErrNotFound matches every NotFoundError with errors.Is.
var ErrNotFound = errors.New("savedb: not found")

// ErrPoisoned is returned by Encode after a cascade was interrupted.
var ErrPoisoned = errors.New("savedb: document left inconsistent by an interrupted operation")

// NotFoundError reports an unknown guild, player, pal or container id. It
// never leaves the document modified.
type NotFoundError struct {
	Kind string
	ID   gvas.GUID
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("savedb: %s %s not found", e.Kind, e.ID)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

func notFound(kind string, id gvas.GUID) error {
	return &NotFoundError{Kind: kind, ID: id}
}
