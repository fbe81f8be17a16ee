package common

import "errors"

// ErrModulePaused is returned by Guard when the named module has been halted
// by the operator.
var ErrModulePaused = errors.New("module paused")

// PauseView exposes the operator pause switches consulted before every
// state-changing operation.
type PauseView interface {
	IsPaused(module string) bool
}

// Guard returns ErrModulePaused when the module is halted. A nil view means
// pausing is not wired and all operations proceed.
func Guard(p PauseView, module string) error {
	if p == nil || module == "" {
		return nil
	}
	if p.IsPaused(module) {
		return ErrModulePaused
	}
	return nil
}
