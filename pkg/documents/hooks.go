package documents

import (
	"context"
	"log/slog"
)

// Hook system allows extending document lifecycle behavior without
// modifying core code. Before hooks may veto an operation by returning an
// error; After hooks run once the mutation has succeeded. Clone shares
// the create After path since it produces a new entry. Batch transitions
// run the matching After hook once per affected entry.

// Hooks defines all available lifecycle hooks
type Hooks struct {
	BeforeCreate    []BeforeCreateHook
	AfterCreate     []AfterCreateHook
	BeforeUpdate    []BeforeUpdateHook
	AfterUpdate     []AfterUpdateHook
	BeforeDelete    []BeforeDeleteHook
	AfterDelete     []AfterDeleteHook
	BeforePublish   []BeforePublishHook
	AfterPublish    []AfterPublishHook
	BeforeUnpublish []BeforeUnpublishHook
	AfterUnpublish  []AfterUnpublishHook

	// Error hooks
	OnError []ErrorHook
}

// HookContext carries information through the hook chain
type HookContext struct {
	Context   context.Context
	Metadata  map[string]any // Custom metadata passed between hooks
	StopChain bool           // Set to true to stop processing remaining hooks
}

// NewHookContext creates a new hook context
func NewHookContext(ctx context.Context) *HookContext {
	return &HookContext{
		Context:  ctx,
		Metadata: make(map[string]any),
	}
}

// BeforeCreateHook is called before creating an entry
type BeforeCreateHook func(hctx *HookContext, req *CreateRequest) error

// AfterCreateHook is called after an entry is created (or cloned)
type AfterCreateHook func(hctx *HookContext, entry Entry) error

// BeforeUpdateHook is called before patching an entry
type BeforeUpdateHook func(hctx *HookContext, req *UpdateRequest) error

// AfterUpdateHook is called after an entry is patched
type AfterUpdateHook func(hctx *HookContext, entry Entry) error

// BeforeDeleteHook is called before removing an entry
type BeforeDeleteHook func(hctx *HookContext, req *DeleteRequest) error

// AfterDeleteHook is called after an entry is removed
type AfterDeleteHook func(hctx *HookContext, entry Entry) error

// BeforePublishHook is called before a publish transition
type BeforePublishHook func(hctx *HookContext, req *PublishRequest) error

// AfterPublishHook is called after an entry version is published
type AfterPublishHook func(hctx *HookContext, entry Entry) error

// BeforeUnpublishHook is called before an unpublish transition
type BeforeUnpublishHook func(hctx *HookContext, req *UnpublishRequest) error

// AfterUnpublishHook is called after an entry is unpublished
type AfterUnpublishHook func(hctx *HookContext, entry Entry) error

// ErrorHook is called when an operation fails against the repository
type ErrorHook func(hctx *HookContext, operation string, err error)

// Hook execution helpers

func (h *Hooks) executeBeforeCreate(ctx context.Context, req *CreateRequest) error {
	if len(h.BeforeCreate) == 0 {
		return nil
	}

	hctx := NewHookContext(ctx)
	for _, hook := range h.BeforeCreate {
		if err := hook(hctx, req); err != nil {
			return err
		}
		if hctx.StopChain {
			break
		}
	}
	return nil
}

func (h *Hooks) executeAfterCreate(ctx context.Context, entry Entry) error {
	if len(h.AfterCreate) == 0 {
		return nil
	}

	hctx := NewHookContext(ctx)
	for _, hook := range h.AfterCreate {
		if err := hook(hctx, entry); err != nil {
			return err
		}
		if hctx.StopChain {
			break
		}
	}
	return nil
}

func (h *Hooks) executeBeforeUpdate(ctx context.Context, req *UpdateRequest) error {
	if len(h.BeforeUpdate) == 0 {
		return nil
	}

	hctx := NewHookContext(ctx)
	for _, hook := range h.BeforeUpdate {
		if err := hook(hctx, req); err != nil {
			return err
		}
		if hctx.StopChain {
			break
		}
	}
	return nil
}

func (h *Hooks) executeAfterUpdate(ctx context.Context, entry Entry) error {
	if len(h.AfterUpdate) == 0 {
		return nil
	}

	hctx := NewHookContext(ctx)
	for _, hook := range h.AfterUpdate {
		if err := hook(hctx, entry); err != nil {
			return err
		}
		if hctx.StopChain {
			break
		}
	}
	return nil
}

func (h *Hooks) executeBeforeDelete(ctx context.Context, req *DeleteRequest) error {
	if len(h.BeforeDelete) == 0 {
		return nil
	}

	hctx := NewHookContext(ctx)
	for _, hook := range h.BeforeDelete {
		if err := hook(hctx, req); err != nil {
			return err
		}
		if hctx.StopChain {
			break
		}
	}
	return nil
}

func (h *Hooks) executeAfterDelete(ctx context.Context, entry Entry) error {
	if len(h.AfterDelete) == 0 {
		return nil
	}

	hctx := NewHookContext(ctx)
	for _, hook := range h.AfterDelete {
		if err := hook(hctx, entry); err != nil {
			return err
		}
		if hctx.StopChain {
			break
		}
	}
	return nil
}

func (h *Hooks) executeBeforePublish(ctx context.Context, req *PublishRequest) error {
	if len(h.BeforePublish) == 0 {
		return nil
	}

	hctx := NewHookContext(ctx)
	for _, hook := range h.BeforePublish {
		if err := hook(hctx, req); err != nil {
			return err
		}
		if hctx.StopChain {
			break
		}
	}
	return nil
}

func (h *Hooks) executeAfterPublish(ctx context.Context, entry Entry) error {
	if len(h.AfterPublish) == 0 {
		return nil
	}

	hctx := NewHookContext(ctx)
	for _, hook := range h.AfterPublish {
		if err := hook(hctx, entry); err != nil {
			return err
		}
		if hctx.StopChain {
			break
		}
	}
	return nil
}

func (h *Hooks) executeBeforeUnpublish(ctx context.Context, req *UnpublishRequest) error {
	if len(h.BeforeUnpublish) == 0 {
		return nil
	}

	hctx := NewHookContext(ctx)
	for _, hook := range h.BeforeUnpublish {
		if err := hook(hctx, req); err != nil {
			return err
		}
		if hctx.StopChain {
			break
		}
	}
	return nil
}

func (h *Hooks) executeAfterUnpublish(ctx context.Context, entry Entry) error {
	if len(h.AfterUnpublish) == 0 {
		return nil
	}

	hctx := NewHookContext(ctx)
	for _, hook := range h.AfterUnpublish {
		if err := hook(hctx, entry); err != nil {
			return err
		}
		if hctx.StopChain {
			break
		}
	}
	return nil
}

func (h *Hooks) executeOnError(ctx context.Context, operation string, err error) {
	if len(h.OnError) == 0 {
		return
	}

	hctx := NewHookContext(ctx)
	for _, hook := range h.OnError {
		hook(hctx, operation, err)
		if hctx.StopChain {
			break
		}
	}
}

// Common hook implementations

// LoggingHooks logs lifecycle transitions and repository failures
func LoggingHooks(logger *slog.Logger) *Hooks {
	return &Hooks{
		AfterCreate: []AfterCreateHook{
			func(hctx *HookContext, entry Entry) error {
				logger.Info("entry created", "id", entry.ID())
				return nil
			},
		},
		AfterPublish: []AfterPublishHook{
			func(hctx *HookContext, entry Entry) error {
				logger.Info("entry published", "id", entry.ID())
				return nil
			},
		},
		AfterUnpublish: []AfterUnpublishHook{
			func(hctx *HookContext, entry Entry) error {
				logger.Info("entry unpublished", "id", entry.ID())
				return nil
			},
		},
		AfterDelete: []AfterDeleteHook{
			func(hctx *HookContext, entry Entry) error {
				logger.Info("entry deleted", "id", entry.ID())
				return nil
			},
		},
		OnError: []ErrorHook{
			func(hctx *HookContext, operation string, err error) {
				logger.Error("operation failed", "operation", operation, "error", err)
			},
		},
	}
}
