package handler

import (
	"errors"
	"net/http"

	"google.golang.org/grpc/codes"

	"github.com/rl1809/half-order/internal/core/service"
)

type errorMapping struct {
	target error
	status int
	code   codes.Code
}

var errorMappings = []errorMapping{
	{service.ErrValidation, http.StatusBadRequest, codes.InvalidArgument},
	{service.ErrSelfJoin, http.StatusBadRequest, codes.InvalidArgument},
	{service.ErrNotFound, http.StatusNotFound, codes.NotFound},
	{service.ErrConflict, http.StatusConflict, codes.AlreadyExists},
	{service.ErrDuplicateJoin, http.StatusConflict, codes.AlreadyExists},
	{service.ErrDuplicateRequest, http.StatusConflict, codes.AlreadyExists},
	{service.ErrState, http.StatusConflict, codes.FailedPrecondition},
	{service.ErrExpired, http.StatusGone, codes.DeadlineExceeded},
	{service.ErrPermission, http.StatusForbidden, codes.PermissionDenied},
}

// classify maps an engine error to its transport status. Unknown errors
// are internal and their text is not shown to clients.
func classify(err error) (int, codes.Code, string) {
	for _, m := range errorMappings {
		if errors.Is(err, m.target) {
			return m.status, m.code, err.Error()
		}
	}
	return http.StatusInternalServerError, codes.Internal, "internal error"
}
