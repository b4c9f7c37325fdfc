package services

import (
	"errors"
	"fmt"
)

// Общие ошибки, используемые в разных сервисах и маппинге HTTP.
// Все перечисленные условия — ожидаемые и восстановимые на стороне
// вызывающего; они возвращаются типизированно и никогда не заменяются
// молчаливыми значениями по умолчанию.
var (
	// Ресурс не найден (универсальная)
	ErrNotFound = errors.New("requested resource not found")

	// Ошибки валидации входа: неверная форма/длина, отклоняются синхронно
	// и без побочных эффектов.
	ErrValidationFailed = errors.New("validation failed")

	// Временные предусловия
	ErrPhaseClosed  = errors.New("contest phase does not accept this operation")
	ErrWindowClosed = errors.New("voting sub-window is closed")

	// Владение и права
	ErrForbidden = errors.New("operation not allowed for the current user")

	// Ресурсные инварианты
	ErrQuotaExceeded  = errors.New("contest submission quota exceeded")
	ErrBudgetExceeded = errors.New("vote budget exceeded")

	// Целостность commit-reveal
	ErrRevealMismatch = errors.New("reveal does not match the stored commitment")

	// Предусловия машины состояний
	ErrAlreadyFinalized  = errors.New("contest is already finalized")
	ErrNotReady          = errors.New("contest is not ready for finalization")
	ErrInvalidTransition = errors.New("invalid phase transition")

	// Конфигурация конкурса (фатально для этого конкурса, не для движка)
	ErrConfiguration = errors.New("contest is misconfigured")

	// Специфичные для компонентов
	ErrAlreadyMinted           = errors.New("voter credential already minted")
	ErrAlreadyWithdrawn        = errors.New("entry is already withdrawn")
	ErrMissingAlgorithmicScore = errors.New("algorithmic score missing for entry")
	ErrAuditPackAlreadyBuilt   = errors.New("audit pack already built")
	ErrMixedBallotStyle        = errors.New("ballot style does not match contest configuration")

	// Ошибки, специфичные для сущностей
	ErrUserNotFound    = errors.New("user not found")
	ErrContestNotFound = errors.New("contest not found")
	ErrEntryNotFound   = errors.New("entry not found")

	// Ошибки аутентификации
	ErrAuthInvalidCredentials = errors.New("invalid email or password")
	ErrAuthEmailTaken         = errors.New("email address is already in use")
	ErrPasswordTooShort       = errors.New("password is too short")

	// Ошибки конфликтов
	ErrContestTitleConflict = errors.New("contest title already exists for this organizer")
)

// Ошибки настройки конкурса. Оборачивают ErrConfiguration: неверная
// конфигурация фатальна для конкретного конкурса, но не для движка.
var (
	ErrContestTitleRequired      = fmt.Errorf("%w: contest title is required", ErrConfiguration)
	ErrContestInvalidSchedule    = fmt.Errorf("%w: phase durations must be non-negative with a positive submission phase", ErrConfiguration)
	ErrContestInvalidStartDate   = fmt.Errorf("%w: contest start date is required", ErrConfiguration)
	ErrContestInvalidBallotStyle = fmt.Errorf("%w: ballot style must be numeric or ranking", ErrConfiguration)
	ErrContestInvalidCapacity    = fmt.Errorf("%w: max submissions must not be negative", ErrConfiguration)
)
