package task

import "github.com/Strob0t/EscrowBoard/internal/domain"

var (
	ErrTaskNotFound      = domain.NewCode("TASK_NOT_FOUND", domain.ErrNotFound)
	ErrTaskAlreadyExists = domain.NewCode("TASK_ALREADY_EXISTS", domain.ErrConflict)

	ErrNotAClient = domain.NewCode("IS_NOT_A_CLIENT", domain.ErrUnauthorized)
	ErrNotAWorker = domain.NewCode("NOT_A_WORKER", domain.ErrUnauthorized)
	ErrNotArbiter = domain.NewCode("NOT_AN_ARBITER", domain.ErrUnauthorized)

	ErrInvalidName           = domain.NewCode("INVALID_NAME", domain.ErrValidation)
	ErrInvalidDescription    = domain.NewCode("INVALID_DESCRIPTION", domain.ErrValidation)
	ErrInvalidToken          = domain.NewCode("INVALID_TOKEN", domain.ErrValidation)
	ErrInvalidExpirationTime = domain.NewCode("INVALID_EXPIRATION_TIME", domain.ErrValidation)

	ErrAlreadyStarted     = domain.NewCode("TASK_ALREADY_STARTED", domain.ErrStateMismatch)
	ErrNotStarted         = domain.NewCode("TASK_NOT_STARTED", domain.ErrStateMismatch)
	ErrNotFinished        = domain.NewCode("TASK_NOT_FINISHED", domain.ErrStateMismatch)
	ErrNotRejected        = domain.NewCode("TASK_NOT_REJECTED", domain.ErrStateMismatch)
	ErrWorkerStillHasTime = domain.NewCode("WORKER_STILL_HAS_TIME", domain.ErrStateMismatch)

	ErrBalanceNotEnough = domain.NewCode("BALANCE_IS_NOT_ENOUGH", domain.ErrFunds)
	ErrTransferFailed   = domain.NewCode("TRANSFER_FAILED", domain.ErrFunds)
)
