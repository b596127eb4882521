package domain

import "errors"

var (
	// ErrValidation — общий вид ошибок валидации входных данных.
	ErrValidation = errors.New("validation failed")
	// ErrRemoteWrite — хранилище отклонило запись (сеть, права, ограничения).
	ErrRemoteWrite = errors.New("remote write failed")
	// ErrPartialSubmission — заголовок заказа записан, а позиции нет.
	ErrPartialSubmission = errors.New("partial order submission")
	// ErrNoActiveBattle возвращается, если нет активной битвы жанров.
	ErrNoActiveBattle = errors.New("no active genre battle")
	// ErrVoteCooldown — повторный голос внутри локального окна ожидания.
	ErrVoteCooldown = errors.New("vote cooldown in effect")

	// Ошибка пустой корзины при отправке заказа.
	ErrCartEmpty = errors.New("cart is empty")
	// Ошибка отсутствующего идентификатора заказа.
	ErrOrderIDRequired = errors.New("order_id is required")
	// Ошибка отсутствующего идентификатора позиции каталога.
	ErrMenuItemIDRequired = errors.New("menu_item_id is required")
	// Ошибка неизвестной категории меню.
	ErrCategoryInvalid = errors.New("menu category is invalid")
	// Ошибка отрицательной суммы заказа.
	ErrAmountNegative = errors.New("total must be non-negative")
	// Ошибка при некорректном количестве товара (<= 0).
	ErrItemQtyInvalid = errors.New("item qty must be greater than zero")
	// Ошибка, если цена позиции отрицательная.
	ErrItemPriceInvalid = errors.New("item price must be non-negative")
	// Ошибка неизвестного статуса заказа.
	ErrOrderStatusInvalid = errors.New("order status is invalid")
	// ErrUnknownChoice — вариант голосования не a и не b.
	ErrUnknownChoice = errors.New("vote choice must be a or b")

	// ErrOrderNotFound возвращается, если заказ не найден в хранилище.
	ErrOrderNotFound = errors.New("order not found")
	// ErrOrderAlreadyExists — заказ с таким id уже записан.
	ErrOrderAlreadyExists = errors.New("order already exists")
	// ErrInvalidStatusTransition — попытка выйти из delivered/canceled.
	ErrInvalidStatusTransition = errors.New("invalid order status transition")
	// ErrBattleNotFound возвращается, если битва не найдена.
	ErrBattleNotFound = errors.New("genre battle not found")
	// ErrPromoNotFound возвращается, если промо не найдено.
	ErrPromoNotFound = errors.New("flash promo not found")
	// ErrOutboxPublish — ошибка при публикации сообщения из outbox.
	ErrOutboxPublish = errors.New("outbox publish failed")
)

// ValidationError описывает некорректное поле запроса.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Field + " " + e.Reason
}

// Is позволяет проверять ошибку через errors.Is(err, ErrValidation).
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// RemoteWriteError оборачивает ошибку хранилища, не меняя её текст:
// оператор видит сообщение хранилища дословно. Op называет операцию.
type RemoteWriteError struct {
	Op  string
	Err error
}

func (e *RemoteWriteError) Error() string {
	if e.Err == nil {
		return e.Op + ": " + ErrRemoteWrite.Error()
	}
	return e.Err.Error()
}

func (e *RemoteWriteError) Unwrap() []error {
	return []error{ErrRemoteWrite, e.Err}
}

// PartialSubmissionError — заголовок OrderID сохранён, запись позиций упала.
// Заказ остаётся без позиций; автоматически не отменяется.
type PartialSubmissionError struct {
	OrderID    string
	TotalMinor int64
	Err        error
}

func (e *PartialSubmissionError) Error() string {
	msg := "order " + e.OrderID + " persisted without lines"
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *PartialSubmissionError) Unwrap() []error {
	return []error{ErrPartialSubmission, ErrRemoteWrite, e.Err}
}

// IsPartialSubmission проверяет, является ли ошибка частичной отправкой заказа.
func IsPartialSubmission(err error) bool {
	return errors.Is(err, ErrPartialSubmission)
}

// IsValidation проверяет, является ли ошибка ошибкой валидации.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}
