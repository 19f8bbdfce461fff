package services

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrNoImage        = errors.New("no image uploaded")
	ErrInvalidImage   = errors.New("invalid image")
	ErrCaptionService = errors.New("caption service failed")
	ErrStorageUpload  = errors.New("storage upload failed")
	ErrPersistence    = errors.New("persistence failed")
	ErrPostNotFound   = errors.New("post not found")
	ErrImageFetch     = errors.New("image fetch failed")
	ErrTimeout        = errors.New("external call timed out")
	ErrForbidden      = errors.New("post belongs to another user")
)

const (
	WorkflowCreatePost        = "create_post"
	WorkflowRegenerateCaption = "regenerate_caption"
)

// Шаги сценариев
const (
	StepReceivedUpload   = "received_upload"
	StepCompressed       = "compressed"
	StepCaptionGenerated = "caption_generated"
	StepUploaded         = "uploaded"
	StepPersisted        = "persisted"
	StepLookup           = "lookup"
	StepRefetch          = "refetch"
	StepEncode           = "encode"
	StepUpdated          = "updated"
)

// WorkflowError - ошибка шага сценария: Kind - одна из ошибок выше, Err - исходная причина
type WorkflowError struct {
	Workflow string
	Step     string
	Kind     error
	Err      error
}

func (e *WorkflowError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s: %v", e.Workflow, e.Step, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v: %v", e.Workflow, e.Step, e.Kind, e.Err)
}

func (e *WorkflowError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func newWorkflowError(workflow, step string, kind, cause error) *WorkflowError {
	return &WorkflowError{Workflow: workflow, Step: step, Kind: kind, Err: cause}
}

// externalError классифицирует ошибку внешнего вызова: истекший таймаут отделяем от отказа сервиса
func externalError(ctx context.Context, workflow, step string, kind, cause error) *WorkflowError {
	if errors.Is(cause, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return newWorkflowError(workflow, step, ErrTimeout, cause)
	}
	return newWorkflowError(workflow, step, kind, cause)
}

var errorKinds = []struct {
	err  error
	name string
}{
	{ErrNoImage, "no_image"},
	{ErrInvalidImage, "invalid_image"},
	{ErrTimeout, "timeout"},
	{ErrCaptionService, "caption_service"},
	{ErrStorageUpload, "storage_upload"},
	{ErrImageFetch, "image_fetch"},
	{ErrPostNotFound, "post_not_found"},
	{ErrForbidden, "forbidden"},
	{ErrPersistence, "persistence"},
}

// ErrorKind возвращает короткий код ошибки для API и метрик
func ErrorKind(err error) string {
	if err == nil {
		return ""
	}
	var wfErr *WorkflowError
	if errors.As(err, &wfErr) {
		for _, k := range errorKinds {
			if errors.Is(wfErr.Kind, k.err) {
				return k.name
			}
		}
	}
	for _, k := range errorKinds {
		if errors.Is(err, k.err) {
			return k.name
		}
	}
	return "internal"
}
