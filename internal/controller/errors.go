package controller

import "errors"

var (
	// ErrValidation — некорректный ввод вызывающего (пустой IP и т.п.);
	// отклоняется до любых внешних вызовов.
	ErrValidation = errors.New("validation failed")

	// ErrFetch — ферма недоступна либо прислала нечитаемый ответ;
	// операция прерывается без частичного коммита.
	ErrFetch = errors.New("device fetch failed")

	// ErrNoPortAvailable — в настроенном диапазоне не осталось свободных
	// портов; прерывает обработку конкретного устройства, не всей пачки.
	ErrNoPortAvailable = errors.New("no free port in range")
)
