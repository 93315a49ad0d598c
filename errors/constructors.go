package errors

import (
	"fmt"
)

// ModelDestroyed creates an error for operations on a model that has been torn down
func ModelDestroyed(model string) *CoreError {
	return New(ErrCodeModelDestroyed, fmt.Sprintf("model '%s' has been destroyed", model)).
		WithDetail("model", model)
}

// ControllerUnreachable creates an error for a failed post to a controller's target
func ControllerUnreachable(model, controller string, err error) *CoreError {
	return Wrap(err, ErrCodeControllerUnreachable,
		fmt.Sprintf("model '%s' cannot reach controller '%s'", model, controller)).
		WithDetail("model", model).
		WithDetail("controller", controller)
}

// TargetClosed creates an error for a post to a delivery target that no longer accepts messages
func TargetClosed(target string) *CoreError {
	return New(ErrCodeTargetClosed, fmt.Sprintf("target '%s' is closed", target)).
		WithDetail("target", target)
}

// JobAlreadyRunning creates an error for a start request on a job that cannot start
func JobAlreadyRunning(job, state string) *CoreError {
	return New(ErrCodeJobAlreadyRunning, fmt.Sprintf("job '%s' cannot be started (state %s)", job, state)).
		WithDetail("job", job).
		WithDetail("state", state)
}

// WorkloadFailed wraps an error returned or raised by a job's workload
func WorkloadFailed(job string, err error) *CoreError {
	return Wrap(err, ErrCodeWorkloadFailed, fmt.Sprintf("workload of job '%s' failed", job)).
		WithDetail("job", job)
}

// Interrupted creates the error a workload returns when it abandons its work
// because ShouldContinue reported false
func Interrupted(job string) *CoreError {
	return New(ErrCodeInterrupted, fmt.Sprintf("job '%s' was interrupted", job)).
		WithDetail("job", job)
}

// Reclaimed creates an error for a reference taken on an object under reclamation
func Reclaimed(object string) *CoreError {
	return New(ErrCodeReclaimed, fmt.Sprintf("object %s is being reclaimed", object)).
		WithDetail("object", object)
}

// ItemNotFound creates an item not found error
func ItemNotFound(model, key string) *CoreError {
	return New(ErrCodeItemNotFound, fmt.Sprintf("item '%s' not found in '%s'", key, model)).
		WithDetail("model", model).
		WithDetail("key", key)
}

// DuplicateKey creates an error for an item whose key is already taken by a sibling
func DuplicateKey(model, key string) *CoreError {
	return New(ErrCodeDuplicateKey, fmt.Sprintf("item '%s' already exists in '%s'", key, model)).
		WithDetail("model", model).
		WithDetail("key", key)
}

// ItemAttached creates an error for adding an item that already belongs to a list model
func ItemAttached(model, key string) *CoreError {
	return New(ErrCodeItemAttached, fmt.Sprintf("item '%s' already belongs to a list, cannot add it to '%s'", key, model)).
		WithDetail("model", model).
		WithDetail("key", key)
}

// ItemDestroyed creates an error for adding an item that has been destroyed
func ItemDestroyed(model, key string) *CoreError {
	return New(ErrCodeItemDestroyed, fmt.Sprintf("item '%s' has been destroyed, cannot add it to '%s'", key, model)).
		WithDetail("model", model).
		WithDetail("key", key)
}

// ConfigNotFound creates a configuration not found error
func ConfigNotFound(path string) *CoreError {
	return New(ErrCodeConfigNotFound, fmt.Sprintf("configuration file not found: %s", path)).
		WithDetail("path", path)
}

// ConfigInvalid creates an invalid configuration error
func ConfigInvalid(reason string) *CoreError {
	return New(ErrCodeConfigInvalid, fmt.Sprintf("invalid configuration: %s", reason))
}
