package batch

import "errors"

var (
	ErrNoInventory      = errors.New("no inventory, run a scan first")
	ErrIndexOutOfRange  = errors.New("inventory index out of range")
	ErrUnknownEntry     = errors.New("unknown inventory entry")
	ErrNothingToExtract = errors.New("no archives selected for extraction")
	ErrNothingToCheck   = errors.New("no archives found to check")
	ErrBatchActive      = errors.New("another batch is already running")
	ErrBatchNotFound    = errors.New("batch not found")
	ErrBatchFinished    = errors.New("batch already finished")
	ErrControlQueueFull = errors.New("batch control queue is full")
	ErrScanInProgress   = errors.New("a scan is already in progress")
	ErrInvalidRequest   = errors.New("invalid batch request")
)
