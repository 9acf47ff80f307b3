package models

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates the remote tracker has no issue with the given key.
	ErrNotFound = errors.New("issue not found")
	// ErrUnmappedStatus indicates a remote status has no workflow mapping.
	ErrUnmappedStatus = errors.New("unable to map issue status")
	// ErrUnmappedType indicates a remote issue type has no workflow mapping.
	ErrUnmappedType = errors.New("unable to map issue type")
	// ErrUnknownAction indicates the workflow has no action with the given name.
	ErrUnknownAction = errors.New("unknown action")
	// ErrInvalidWorkflow indicates a workflow failed validation.
	ErrInvalidWorkflow = errors.New("invalid workflow")
	// ErrNoWorkspace indicates no workspace is registered for the current directory.
	ErrNoWorkspace = errors.New("cannot run outside of workspace, run 'gfl init' to initialize workspace")
)

// NotFoundError reports a missing remote issue key.
type NotFoundError struct {
	Key string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("the specified JIRA issue: %s, does not exist", e.Key)
}

func (e *NotFoundError) Unwrap() error {
	return ErrNotFound
}
