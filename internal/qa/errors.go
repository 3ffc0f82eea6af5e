package qa

import (
	"errors"

	"github.com/sujalbistaa/krishi/internal/errorz"
)

var (
	ErrValidation = errorz.ErrValidation
	ErrNotFound   = errorz.ErrNotFound
	// ErrDuplicateVote is returned when the voter already voted on the answer.
	ErrDuplicateVote = errors.New("already voted on this answer")
)

func required(field string) error {
	return errorz.Required(field)
}

func notFound(what string, id uint) error {
	return errorz.NotFound(what, id)
}
