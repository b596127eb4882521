package grpcstore

import (
	"context"
	"errors"
	"strings"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/vladislavdragonenkov/barflow/internal/domain"
)

type errorMapping struct {
	err  error
	code codes.Code
}

// knownErrors проверяются по порядку: первая совпавшая ошибка определяет код.
var knownErrors = []errorMapping{
	{domain.ErrOrderNotFound, codes.NotFound},
	{domain.ErrBattleNotFound, codes.NotFound},
	{domain.ErrPromoNotFound, codes.NotFound},
	{domain.ErrOrderAlreadyExists, codes.AlreadyExists},
	{domain.ErrInvalidStatusTransition, codes.FailedPrecondition},
	{domain.ErrNoActiveBattle, codes.FailedPrecondition},
	{domain.ErrUnknownChoice, codes.InvalidArgument},
	{domain.ErrOrderStatusInvalid, codes.InvalidArgument},
	{domain.ErrOrderIDRequired, codes.InvalidArgument},
	{domain.ErrMenuItemIDRequired, codes.InvalidArgument},
	{domain.ErrCategoryInvalid, codes.InvalidArgument},
	{domain.ErrAmountNegative, codes.InvalidArgument},
	{domain.ErrItemQtyInvalid, codes.InvalidArgument},
	{domain.ErrItemPriceInvalid, codes.InvalidArgument},
	{domain.ErrValidation, codes.InvalidArgument},
}

// toStatus переводит ошибку хранилища в gRPC-статус. Неизвестные ошибки скрываются за Internal.
func toStatus(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	switch {
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	}
	for _, known := range knownErrors {
		if errors.Is(err, known.err) {
			return status.Error(known.code, err.Error())
		}
	}
	return status.Error(codes.Internal, "store operation failed")
}

// remoteError хранит текст ошибки сервера и восстановленную доменную причину.
type remoteError struct {
	code  codes.Code
	msg   string
	cause error
}

func (e *remoteError) Error() string {
	return e.msg
}

func (e *remoteError) Unwrap() error {
	return e.cause
}

// GRPCStatus позволяет status.Code видеть исходный код.
func (e *remoteError) GRPCStatus() *status.Status {
	return status.New(e.code, e.msg)
}

// fromStatus восстанавливает доменную ошибку по коду и тексту статуса.
func fromStatus(err error) error {
	if err == nil {
		return nil
	}
	st, ok := status.FromError(err)
	if !ok {
		return err
	}

	switch st.Code() {
	case codes.OK:
		return nil
	case codes.Canceled:
		return &remoteError{code: st.Code(), msg: st.Message(), cause: context.Canceled}
	case codes.DeadlineExceeded:
		return &remoteError{code: st.Code(), msg: st.Message(), cause: context.DeadlineExceeded}
	}

	for _, known := range knownErrors {
		if known.code == st.Code() && strings.Contains(st.Message(), known.err.Error()) {
			return &remoteError{code: st.Code(), msg: st.Message(), cause: known.err}
		}
	}
	if st.Code() == codes.InvalidArgument {
		return &remoteError{code: st.Code(), msg: st.Message(), cause: domain.ErrValidation}
	}
	return &remoteError{code: st.Code(), msg: st.Message()}
}
