package segments

import (
	"errors"
	"fmt"

	"github.com/mesh-intelligence/segments/pkg/types"
)

// Service errors. Store failures are wrapped with context and surface as
// KindStore.
var (
	ErrNotAuthenticated = errors.New("user not authenticated")
	ErrValidation       = errors.New("validation failed")
	ErrNotFound         = types.ErrNotFound
	ErrPermission       = errors.New("permission denied")
	ErrDuplicateName    = errors.New("a segment with this name already exists")
	ErrAlreadyExists    = errors.New("contact is already in segment")
	ErrBatchFailed      = errors.New("no item in the batch succeeded")

	ErrSameSegment   = fmt.Errorf("%w: source and target segment must differ", ErrValidation)
	ErrNoContacts    = fmt.Errorf("%w: at least one contact is required", ErrValidation)
	ErrNoSources     = fmt.Errorf("%w: at least one source segment is required", ErrValidation)
	ErrEmptyID       = fmt.Errorf("%w: id must not be empty", ErrValidation)
	errUnexpectedDoc = errors.New("unexpected document type")
)

// Kind classifies an error for callers that only need its category.
type Kind string

const (
	KindNone           Kind = ""
	KindAuthentication Kind = "authentication"
	KindValidation     Kind = "validation"
	KindNotFound       Kind = "not_found"
	KindPermission     Kind = "permission"
	KindDuplicateName  Kind = "duplicate_name"
	KindAlreadyExists  Kind = "already_exists"
	KindBatchFailed    Kind = "batch_failed"
	KindStore          Kind = "store"
)

// KindOf maps err onto the error taxonomy. Anything unrecognised is a store
// failure.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrNotAuthenticated):
		return KindAuthentication
	case errors.Is(err, ErrValidation),
		errors.Is(err, types.ErrInvalidName),
		errors.Is(err, types.ErrInvalidColor),
		errors.Is(err, types.ErrInvalidID):
		return KindValidation
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrPermission):
		return KindPermission
	case errors.Is(err, ErrDuplicateName):
		return KindDuplicateName
	case errors.Is(err, ErrAlreadyExists), errors.Is(err, types.ErrDuplicate):
		return KindAlreadyExists
	case errors.Is(err, ErrBatchFailed):
		return KindBatchFailed
	default:
		return KindStore
	}
}
