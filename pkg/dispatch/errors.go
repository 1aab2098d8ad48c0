package dispatch

import "errors"

var (
	ErrStoreNil        = errors.New("notification store cannot be nil")
	ErrEnqueuerNil     = errors.New("enqueuer cannot be nil")
	ErrFilterNil       = errors.New("preference filter cannot be nil")
	ErrRegistryNil     = errors.New("channel registry cannot be nil")
	ErrInvalidType     = errors.New("unknown notification type")
	ErrInvalidChannel  = errors.New("unknown notification channel")
	ErrInvalidPriority = errors.New("unknown notification priority")
	ErrEmptyMessage    = errors.New("notification has neither message nor template")
)
