package control

import (
	"context"
	"errors"
	"net/http"

	"github.com/matheus3301/chatsync/internal/auth"
	"github.com/matheus3301/chatsync/internal/chat"
	"github.com/matheus3301/chatsync/internal/chatstate"
	"github.com/matheus3301/chatsync/internal/presence"
	"github.com/matheus3301/chatsync/internal/realtime"
	"github.com/matheus3301/chatsync/internal/restapi"
	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"
)

// toStatus maps domain errors onto gRPC status codes.
func toStatus(op string, err error) error {
	if err == nil {
		return nil
	}
	var apiErr *restapi.APIError
	code := codes.Internal
	switch {
	case errors.Is(err, context.Canceled):
		code = codes.Canceled
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, presence.ErrTimeout):
		code = codes.DeadlineExceeded
	case errors.Is(err, chatstate.ErrNotReady),
		errors.Is(err, chatstate.ErrLoadInProgress),
		errors.Is(err, chatstate.ErrHistoryExhausted):
		code = codes.FailedPrecondition
	case errors.Is(err, chat.ErrInvalidMessage),
		errors.Is(err, chatstate.ErrInvalidGroup),
		errors.Is(err, chatstate.ErrUnknownConversation),
		errors.Is(err, errInvalidRequest):
		code = codes.InvalidArgument
	case errors.Is(err, chatstate.ErrNoIdentity),
		errors.Is(err, auth.ErrExpired),
		errors.Is(err, auth.ErrNoUser):
		code = codes.Unauthenticated
	case errors.Is(err, realtime.ErrNotConnected):
		code = codes.Unavailable
	case errors.As(err, &apiErr):
		code = httpCode(apiErr.Status)
	}
	return grpcstatus.Errorf(code, "%s: %v", op, err)
}

func httpCode(status int) codes.Code {
	switch status {
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return codes.InvalidArgument
	case http.StatusUnauthorized:
		return codes.Unauthenticated
	case http.StatusForbidden:
		return codes.PermissionDenied
	case http.StatusNotFound:
		return codes.NotFound
	case http.StatusConflict:
		return codes.AlreadyExists
	case http.StatusTooManyRequests:
		return codes.ResourceExhausted
	default:
		return codes.Unavailable
	}
}
