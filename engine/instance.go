package engine

import (
	"context"

	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"
)

// Instance is an instantiated guest module together with the host modules
// created for its imports.
type Instance struct {
	mod   api.Module
	log   *zap.Logger
	hosts []api.Module
}

// Function returns the exported function name, or nil.
func (i *Instance) Function(name string) api.Function {
	if i.mod == nil {
		return nil
	}
	return i.mod.ExportedFunction(name)
}

// Global returns the exported global name, or nil.
func (i *Instance) Global(name string) api.Global {
	if i.mod == nil {
		return nil
	}
	return i.mod.ExportedGlobal(name)
}

// Memory returns the instance's memory, or nil if it has none.
func (i *Instance) Memory() api.Memory {
	if i.mod == nil {
		return nil
	}
	return i.mod.Memory()
}

// Module exposes the underlying guest module.
func (i *Instance) Module() api.Module {
	return i.mod
}

// Closed reports whether the guest module was closed, either by Close or by
// the interpreter after an exit or a canceled call.
func (i *Instance) Closed() bool {
	return i.mod == nil || i.mod.IsClosed()
}

// Close closes the guest module, then its host modules.
func (i *Instance) Close(ctx context.Context) error {
	var firstErr error
	if i.mod != nil {
		if err := i.mod.Close(ctx); err != nil {
			firstErr = err
		}
	}
	for _, h := range i.hosts {
		if err := h.Close(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	i.hosts = nil
	if firstErr != nil {
		i.log.Debug("close instance", zap.Error(firstErr))
	}
	return firstErr
}

// Call invokes fn with its parameters in stack. On StatusOK the results
// occupy the front of stack. stack must hold max(params, results) slots.
func Call(ctx context.Context, fn api.Function, stack []uint64) Outcome {
	if fn == nil {
		return Outcome{Status: StatusFailed, Message: "function is not available"}
	}
	if err := fn.CallWithStack(ctx, stack); err != nil {
		return Classify(err)
	}
	return Outcome{Status: StatusOK}
}
