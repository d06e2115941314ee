package handler

import (
	"errors"
	"fmt"
	"math"

	"github.com/ogurasousui/staff-bot/internal/core/employee"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	msgGuildOnly        = "❌ Команды можно использовать только на сервере!"
	msgPermissionDenied = "❌ Недостаточно прав"
	msgNoWarnings       = "❌ У этого работника нет выговоров"
	msgAlreadyEmployed  = "❌ Этот пользователь уже работает"
	msgNotFound         = "❌ Работник не найден"
	msgInvalidTarget    = "❌ Выберите работника"
	msgInvalidDate      = "❌ Неверный формат даты. Используйте ДД.ММ.ГГГГ"
	msgInvalidAmount    = "❌ Неверное количество"
	msgInvalidPosition  = "❌ Укажите должность"
	msgInvalidReason    = "❌ Укажите причину"
	msgInvalidDuration  = "❌ Укажите срок отпуска"
	msgEmptyUpdate      = "❌ Укажите, что нужно изменить"
	msgEmptyRoster      = "Список работников пуст"
)

// toReply はユーザーに見せるべきエラーを一時メッセージへ変換します。
// 変換できないエラーは false を返します。
func toReply(err error) (string, bool) {
	var cooldown *employee.CooldownError
	switch {
	case errors.As(err, &cooldown):
		seconds := int(math.Ceil(cooldown.Remaining.Seconds()))
		return fmt.Sprintf("⏳ Подождите %d сек. перед повторным использованием команды", seconds), true
	case errors.Is(err, employee.ErrPermissionDenied):
		return msgPermissionDenied, true
	case errors.Is(err, employee.ErrNoWarnings):
		return msgNoWarnings, true
	case errors.Is(err, employee.ErrAlreadyEmployed):
		return msgAlreadyEmployed, true
	case errors.Is(err, employee.ErrEmployeeNotFound):
		return msgNotFound, true
	case errors.Is(err, employee.ErrInvalidID):
		return msgInvalidTarget, true
	case errors.Is(err, employee.ErrInvalidDate):
		return msgInvalidDate, true
	case errors.Is(err, employee.ErrInvalidAmount):
		return msgInvalidAmount, true
	case errors.Is(err, employee.ErrInvalidPosition):
		return msgInvalidPosition, true
	case errors.Is(err, employee.ErrInvalidReason):
		return msgInvalidReason, true
	case errors.Is(err, employee.ErrInvalidDuration):
		return msgInvalidDuration, true
	case errors.Is(err, employee.ErrEmptyUpdate):
		return msgEmptyUpdate, true
	default:
		return "", false
	}
}

func toStatusError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, errUnknownCommand), errors.Is(err, errMalformedRequest):
		return status.Error(codes.InvalidArgument, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}
