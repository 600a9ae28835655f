package controller

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/sharetube/partysync/internal/service/party"
	"github.com/sharetube/partysync/pkg/protocol"
	"github.com/sharetube/partysync/pkg/validator"
)

var errInvalidInput = errors.New("invalid input")

const (
	codeForbidden         = "FORBIDDEN"
	codeInvalidTransition = "INVALID_TRANSITION"
	codeNotFound          = "NOT_FOUND"
	codeBadRequest        = "BAD_REQUEST"
	codeUnauthorized      = "UNAUTHORIZED"
	codeInternal          = "INTERNAL"
)

// generateTimeBasedId returns a time ordered id for request correlation.
func (c controller) generateTimeBasedId() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}

	return id.String()
}

func (c controller) validateInput(v any) error {
	if errs, ok := c.validate.Validate(v); !ok {
		return fmt.Errorf("%w: %w", errInvalidInput, validator.Error(errs))
	}

	return nil
}

// errorCode maps service errors to the codes sent to clients.
func errorCode(err error) (string, int) {
	switch {
	case errors.Is(err, party.ErrForbidden):
		return codeForbidden, http.StatusForbidden
	case errors.Is(err, party.ErrInvalidTransition):
		return codeInvalidTransition, http.StatusConflict
	case errors.Is(err, party.ErrPartyNotFound), errors.Is(err, party.ErrMemberNotFound):
		return codeNotFound, http.StatusNotFound
	case errors.Is(err, party.ErrInvalidToken):
		return codeUnauthorized, http.StatusUnauthorized
	case errors.Is(err, errInvalidInput), errors.Is(err, protocol.ErrUnknownType):
		return codeBadRequest, http.StatusBadRequest
	default:
		return codeInternal, http.StatusInternalServerError
	}
}

func errorMessage(err error) protocol.Error {
	code, _ := errorCode(err)
	msg := err.Error()
	if code == codeInternal {
		msg = "internal error"
	}

	return protocol.Error{Code: code, Message: msg}
}
