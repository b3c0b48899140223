package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"connectrpc.com/connect"
	"github.com/shopspring/decimal"

	"github.com/mmynk/cooper/internal/middleware"
	"github.com/mmynk/cooper/internal/storage"
)

var (
	errNotParticipant = errors.New("you are not a participant of this event")
	errNotOrganizer   = errors.New("only the event organizer can do this")
	errNotGroupMember = errors.New("you are not a member of this group")
)

// toConnectError maps domain errors to Connect codes.
func toConnectError(err error) *connect.Error {
	var connectErr *connect.Error
	if errors.As(err, &connectErr) {
		return connectErr
	}

	code := connect.CodeInternal
	switch {
	case errors.Is(err, storage.ErrNotFound):
		code = connect.CodeNotFound
	case errors.Is(err, storage.ErrAlreadyExists):
		code = connect.CodeAlreadyExists
	case errors.Is(err, storage.ErrNotParticipant):
		code = connect.CodePermissionDenied
	case errors.Is(err, storage.ErrSettlementInProgress):
		code = connect.CodeAborted
	case errors.Is(err, storage.ErrEventClosed), errors.Is(err, storage.ErrInsufficientFunds):
		code = connect.CodeFailedPrecondition
	case errors.Is(err, context.Canceled):
		code = connect.CodeCanceled
	case errors.Is(err, context.DeadlineExceeded):
		code = connect.CodeDeadlineExceeded
	}
	return connect.NewError(code, err)
}

// gatewayError reports a failed gateway call as unavailable.
func gatewayError(err error) *connect.Error {
	if errors.Is(err, context.Canceled) {
		return connect.NewError(connect.CodeCanceled, err)
	}
	return connect.NewError(connect.CodeUnavailable, fmt.Errorf("payment gateway: %w", err))
}

func invalidArgument(format string, args ...any) *connect.Error {
	return connect.NewError(connect.CodeInvalidArgument, fmt.Errorf(format, args...))
}

// callerID returns the authenticated user or an Unauthenticated error.
func callerID(ctx context.Context) (string, error) {
	userID := middleware.GetUserID(ctx)
	if userID == "" {
		return "", connect.NewError(connect.CodeUnauthenticated, errors.New("authentication required"))
	}
	return userID, nil
}

// parseAmount parses a positive money amount rounded to cents.
func parseAmount(field, s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, invalidArgument("%s is required", field)
	}
	amount, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, invalidArgument("%s is not a number: %q", field, s)
	}
	amount = amount.Round(2)
	if !amount.IsPositive() {
		return decimal.Zero, invalidArgument("%s must be greater than zero", field)
	}
	return amount, nil
}

// fail logs a failed operation and converts the error.
func fail(op string, err error, attrs ...any) *connect.Error {
	cerr := toConnectError(err)
	attrs = append(attrs, "code", cerr.Code().String(), "error", err)
	if cerr.Code() == connect.CodeInternal {
		slog.Error(op+" failed", attrs...)
	} else {
		slog.Warn(op+" failed", attrs...)
	}
	return cerr
}
