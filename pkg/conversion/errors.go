package conversion

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"

	"github.com/Ramsey-B/fern/pkg/classifier"
	"github.com/Ramsey-B/fern/pkg/dataset"
	"github.com/Ramsey-B/fern/pkg/identity"
	"github.com/Ramsey-B/fern/pkg/models"
)

// Error is a classified per-record failure
type Error struct {
	Kind  models.ErrorKind
	State State
	Key   string
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v", e.State, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Entry reduces the error to a summary entry
func (e *Error) Entry() models.ErrorEntry {
	return models.ErrorEntry{Key: e.Key, Kind: e.Kind, Reason: e.Error()}
}

// Classify maps an error raised in a state to its failure kind
func Classify(state State, key string, err error) *Error {
	var ce *Error
	if errors.As(err, &ce) {
		return ce
	}
	return &Error{Kind: kindOf(err), State: state, Key: key, Err: err}
}

func kindOf(err error) models.ErrorKind {
	switch {
	case errors.Is(err, classifier.ErrBadData),
		errors.Is(err, classifier.ErrMalformedDate),
		errors.Is(err, classifier.ErrInvalidRecord),
		errors.Is(err, dataset.ErrSchoolNotFound):
		return models.ErrorKindValidation
	case errors.Is(err, identity.ErrNoIdentity):
		return models.ErrorKindNotFound
	}

	var he *httperror.HTTPError
	if errors.As(err, &he) && httperror.GetStatusCode(he) == http.StatusNotFound {
		return models.ErrorKindNotFound
	}
	return models.ErrorKindUpstream
}
