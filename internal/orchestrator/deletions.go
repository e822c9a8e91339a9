package orchestrator

import (
	"context"
	"fmt"

	"github.com/acoustic-content-samples/wchtools-cli-sub005/internal/artifact"
)

// runDeletions executes the pull-only deletions sub-protocol: after the
// pull batch, items present locally but absent from the remote
// enumeration just performed are local-only. Each is deleted
// unconditionally under --quiet, or after a per-item confirmation
// otherwise. A deletion failure never blocks the remaining deletions,
// and deletions are counted separately from pull errors.
func (o *Orchestrator) runDeletions(ctx context.Context, actx *artifact.Context, h artifact.Helper,
	remote []artifact.Item, result *BatchResult) {
	if !o.settings.Deletions {
		return
	}

	local, err := h.ListLocalItems(ctx, actx, artifact.ListOptions{})
	if err != nil {
		o.logger.Printf("WARNING: failed to enumerate local %s for deletions: %v", h.Name(), err)
		return
	}

	remotePaths := make(map[string]bool, len(remote))
	for _, it := range remote {
		remotePaths[it.Path] = true
	}

	emitter := h.GetEventEmitter(actx)
	for _, it := range local {
		if remotePaths[it.Path] {
			continue
		}
		emitter.Emit(artifact.Event{Name: artifact.EventLocalOnly, Item: it})

		if !o.settings.Quiet && !o.confirmDeletion(h, it) {
			continue
		}
		if err := o.DeleteLocalItem(ctx, actx, h, it); err != nil {
			o.logger.Printf("WARNING: failed to delete local %s %s: %v", h.ArtifactName(), it.Path, err)
			result.DeletionsFailed++
			continue
		}
		result.DeletionsOK++
	}
}

// confirmDeletion asks the prompter about one local-only item. A nil
// prompter declines, leaving the item in place.
func (o *Orchestrator) confirmDeletion(h artifact.Helper, it artifact.Item) bool {
	if o.prompter == nil {
		return false
	}
	name := it.Name
	if name == "" {
		name = it.Path
	}
	ok, err := o.prompter.Confirm(fmt.Sprintf("Delete local %s %q?", h.ArtifactName(), name))
	if err != nil {
		o.logger.Printf("WARNING: deletion prompt failed for %s: %v", it.Path, err)
		return false
	}
	return ok
}

// DeleteLocalItem removes one local artifact and, for content-bearing
// types, its associated binary resource, then drops its change record.
func (o *Orchestrator) DeleteLocalItem(ctx context.Context, actx *artifact.Context, h artifact.Helper, it artifact.Item) error {
	if err := h.DeleteLocalItem(ctx, actx, it); err != nil {
		return fmt.Errorf("failed to delete local %s: %w", it.Path, err)
	}
	if err := h.DeleteLocalResource(ctx, actx, it); err != nil {
		return fmt.Errorf("failed to delete local resource for %s: %w", it.Path, err)
	}
	if o.store != nil {
		if err := o.store.DeleteRecord(ctx, actx.Tenant, it.Path); err != nil {
			o.logger.Printf("WARNING: failed to drop change record for %s: %v", it.Path, err)
		}
	}
	return nil
}

// DeleteLocalResource removes only the binary resource backing an item.
func (o *Orchestrator) DeleteLocalResource(ctx context.Context, actx *artifact.Context, h artifact.Helper, it artifact.Item) error {
	if err := h.DeleteLocalResource(ctx, actx, it); err != nil {
		return fmt.Errorf("failed to delete local resource for %s: %w", it.Path, err)
	}
	return nil
}
