package canfd

import "errors"

var (
	ErrInvalidTiming = errors.New("invalid bit timing parameters")
	ErrBitrateError  = errors.New("bitrate error too high")
	ErrInvalidFrame  = errors.New("invalid frame")
	ErrFDDisabled    = errors.New("fd frame but controller is not in fd mode")
	ErrBusy          = errors.New("both transmit buffers are busy")
	ErrNotRunning    = errors.New("controller is not running")
	ErrRunning       = errors.New("operation not allowed while controller is running")
	ErrNotBusOff     = errors.New("controller is not in bus-off state")
	ErrNoBuffer      = errors.New("no buffer available for frame")
	ErrQueueStopped  = errors.New("transmit queue is stopped")
	ErrNoClock       = errors.New("no clock source for controller")
)
