// Package orchestrator implements the pull/push reconciliation engine:
// it decides, for a given artifact type and direction, which items must
// be transferred, in what order, under what concurrency, and how partial
// failure is reported.
//
// The orchestrator enumerates a candidate item set through the uniform
// Helper contract, applies selection filtering (status, path prefix,
// manifest compatibility), fans out per-item transfers with bounded
// concurrency, collects per-item outcomes from the operation's event
// stream, and renders an aggregated result. Per-item errors are always
// collected, never thrown across item boundaries; only batch-level
// validation failures abort an operation before transfers begin.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/acoustic-content-samples/wchtools-cli-sub005/internal/artifact"
	"github.com/acoustic-content-samples/wchtools-cli-sub005/internal/compare"
	"github.com/acoustic-content-samples/wchtools-cli-sub005/internal/hashes"
	"github.com/acoustic-content-samples/wchtools-cli-sub005/internal/manifest"
	"github.com/acoustic-content-samples/wchtools-cli-sub005/internal/options"
	"github.com/acoustic-content-samples/wchtools-cli-sub005/internal/ui"
)

// Batch-level sentinel errors, raised before any transfer begins.
var (
	// ErrNoLocalDirectories is returned when a push finds no local
	// directory for the artifact type.
	ErrNoLocalDirectories = errors.New("no local directories to push")

	// ErrItemNotFound is returned when a single named item cannot be
	// resolved.
	ErrItemNotFound = errors.New("item not found")
)

// Orchestrator runs transfer batches against registered helpers.
type Orchestrator struct {
	registry *artifact.Registry
	store    *hashes.Store
	settings *options.Settings
	prompter ui.Prompter
	logger   *log.Logger
}

// New creates an orchestrator. The registry and settings are required;
// store may be nil for operations that never consult change state, and
// prompter may be nil when deletions are disabled or quiet. If logger is
// nil, a default logger writing to stderr is used.
func New(registry *artifact.Registry, store *hashes.Store, settings *options.Settings,
	prompter ui.Prompter, logger *log.Logger) *Orchestrator {
	if logger == nil {
		logger = log.New(os.Stderr, "[orchestrator] ", log.LstdFlags)
	}
	return &Orchestrator{
		registry: registry,
		store:    store,
		settings: settings,
		prompter: prompter,
		logger:   logger,
	}
}

// PullAll transfers every remote item of the type, regardless of change
// state.
func (o *Orchestrator) PullAll(ctx context.Context, actx *artifact.Context, h artifact.Helper) (*BatchResult, error) {
	result := o.newResult(actx)
	defer result.detach()

	err := o.forEachSite(actx, h, func(sctx *artifact.Context) error {
		items, err := h.ListRemoteItems(ctx, sctx, o.listOptions())
		if err != nil {
			return fmt.Errorf("failed to enumerate remote %s: %w", h.Name(), err)
		}
		selected := o.filterItems(h, items)
		result.candidates += len(selected)
		o.transfer(ctx, sctx, h, selected, Pull, true)
		o.runDeletions(ctx, sctx, h, items, result)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return o.complete(actx, result, Pull)
}

// PullModified transfers only remote items whose modification marker is
// newer than the change record. Items with no record are treated as
// modified (first-time transfer).
func (o *Orchestrator) PullModified(ctx context.Context, actx *artifact.Context, h artifact.Helper) (*BatchResult, error) {
	result := o.newResult(actx)
	defer result.detach()

	err := o.forEachSite(actx, h, func(sctx *artifact.Context) error {
		items, err := h.ListRemoteModifiedItems(ctx, sctx, o.listOptions())
		if err != nil {
			return fmt.Errorf("failed to enumerate modified remote %s: %w", h.Name(), err)
		}
		selected, err := o.selectRemoteModified(ctx, sctx, o.filterItems(h, items))
		if err != nil {
			return err
		}
		result.candidates += len(selected)
		o.transfer(ctx, sctx, h, selected, Pull, false)
		o.runDeletions(ctx, sctx, h, items, result)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return o.complete(actx, result, Pull)
}

// PushAll transfers every local item of the type.
func (o *Orchestrator) PushAll(ctx context.Context, actx *artifact.Context, h artifact.Helper) (*BatchResult, error) {
	if !h.DoesDirectoryExist(actx) {
		return nil, fmt.Errorf("%w for %s", ErrNoLocalDirectories, h.Name())
	}
	result := o.newResult(actx)
	defer result.detach()

	err := o.forEachSite(actx, h, func(sctx *artifact.Context) error {
		items, err := h.ListLocalItems(ctx, sctx, o.listOptions())
		if err != nil {
			return fmt.Errorf("failed to enumerate local %s: %w", h.Name(), err)
		}
		selected := o.filterItems(h, items)
		result.candidates += len(selected)
		o.transfer(ctx, sctx, h, selected, Push, true)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return o.complete(actx, result, Push)
}

// PushModified transfers only local items changed since the last
// recorded push.
func (o *Orchestrator) PushModified(ctx context.Context, actx *artifact.Context, h artifact.Helper) (*BatchResult, error) {
	if !h.DoesDirectoryExist(actx) {
		return nil, fmt.Errorf("%w for %s", ErrNoLocalDirectories, h.Name())
	}
	result := o.newResult(actx)
	defer result.detach()

	err := o.forEachSite(actx, h, func(sctx *artifact.Context) error {
		items, err := h.ListLocalModifiedItems(ctx, sctx, o.listOptions())
		if err != nil {
			return fmt.Errorf("failed to enumerate modified local %s: %w", h.Name(), err)
		}
		selected, err := o.selectLocalModified(ctx, sctx, o.filterItems(h, items))
		if err != nil {
			return err
		}
		result.candidates += len(selected)
		o.transfer(ctx, sctx, h, selected, Push, false)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return o.complete(actx, result, Push)
}

// PullByManifest pulls the items recorded in the manifest, one per-type
// batch at a time, then updates the manifest from the outcome and saves
// it exactly once. A save failure is logged, never propagated.
func (o *Orchestrator) PullByManifest(ctx context.Context, actx *artifact.Context, man *manifest.Coordinator) (*BatchResult, error) {
	return o.runManifest(ctx, actx, man, Pull)
}

// PushByManifest pushes the items recorded in the manifest.
func (o *Orchestrator) PushByManifest(ctx context.Context, actx *artifact.Context, man *manifest.Coordinator) (*BatchResult, error) {
	return o.runManifest(ctx, actx, man, Push)
}

func (o *Orchestrator) runManifest(ctx context.Context, actx *artifact.Context, man *manifest.Coordinator, d Direction) (*BatchResult, error) {
	if err := man.Validate(actx.Tier); err != nil {
		return nil, err
	}

	result := o.newResult(actx)
	defer result.detach()

	for _, typeName := range man.TypeNames() {
		h, ok := o.registry.Lookup(typeName)
		if !ok {
			return nil, fmt.Errorf("%w: no helper registered for manifest type %s",
				manifest.ErrIncompatibleTypes, typeName)
		}

		items := make([]artifact.Item, 0, len(man.Section(typeName)))
		for id, entry := range man.Section(typeName) {
			item := artifact.Item{Name: entry.Name, Path: entry.Path}
			if id != entry.Path {
				item.ID = id
			}
			items = append(items, item)
		}

		start := len(result.Succeeded)
		err := o.forEachSite(actx, h, func(sctx *artifact.Context) error {
			result.candidates += len(items)
			o.transfer(ctx, sctx, h, items, d, true)
			return nil
		})
		if err != nil {
			return nil, err
		}

		// Record this type's batch outcome in its manifest section.
		for _, it := range result.Succeeded[start:] {
			man.SetEntry(typeName, it)
		}
	}

	// One save per top-level operation, after all per-type batches,
	// regardless of item failures. The transfer outcome already
	// reported stands even when the save fails.
	if err := man.Save(); err != nil {
		o.logger.Printf("WARNING: failed to save manifest: %v", err)
	}

	return o.complete(actx, result, d)
}

// PullByTypeName searches the helper's remote items by type name and
// pulls the matches plus, recursively, every referenced sub-artifact
// through its own helper. Referenced artifacts are deduplicated by id so
// each is fetched at most once per run even when referenced by multiple
// parents.
func (o *Orchestrator) PullByTypeName(ctx context.Context, actx *artifact.Context, h artifact.Helper, typeName string) (*BatchResult, error) {
	items, err := h.SearchRemote(ctx, actx, typeName)
	if err != nil {
		return nil, fmt.Errorf("failed to search remote %s by type name: %w", h.Name(), err)
	}

	result := o.newResult(actx)
	defer result.detach()
	result.candidates = len(items)

	seen := newDedupSet()
	for _, it := range items {
		seen.add(h.Name() + "/" + it.Key())
	}

	o.transferFunc(items, func(it artifact.Item) {
		pulled, ok := o.pullOne(ctx, actx, h, it, true)
		if ok {
			o.pullReferences(ctx, actx, pulled.References, seen)
		}
	})

	return o.complete(actx, result, Pull)
}

// pullReferences resolves referenced sub-artifacts depth-first through
// the registry, inside the parent's worker slot.
func (o *Orchestrator) pullReferences(ctx context.Context, actx *artifact.Context, refs []artifact.Reference, seen *dedupSet) {
	for _, ref := range refs {
		if !seen.add(ref.TypeName + "/" + ref.ID) {
			continue
		}

		refHelper, ok := o.registry.Lookup(ref.TypeName)
		if !ok {
			o.logger.Printf("WARNING: no helper registered for referenced type %s", ref.TypeName)
			continue
		}
		pulled, ok := o.pullOne(ctx, actx, refHelper, artifact.Item{ID: ref.ID}, true)
		if ok {
			o.pullReferences(ctx, actx, pulled.References, seen)
		}
	}
}

// dedupSet tracks already-requested artifacts across concurrent workers.
type dedupSet struct {
	mu   sync.Mutex
	keys map[string]bool
}

func newDedupSet() *dedupSet {
	return &dedupSet{keys: make(map[string]bool)}
}

// add records the key and reports whether it was new.
func (s *dedupSet) add(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.keys[key] {
		return false
	}
	s.keys[key] = true
	return true
}

// PullItem resolves one item by name or path and transfers it
// unconditionally, skipping the modified-check.
func (o *Orchestrator) PullItem(ctx context.Context, actx *artifact.Context, h artifact.Helper, name string) (*BatchResult, error) {
	item, err := o.resolveRemote(ctx, actx, h, name)
	if err != nil {
		return nil, err
	}

	result := o.newResult(actx)
	defer result.detach()
	result.candidates = 1
	o.pullOne(ctx, actx, h, item, true)
	return o.complete(actx, result, Pull)
}

// PushItem resolves one local item by name or path and transfers it
// unconditionally.
func (o *Orchestrator) PushItem(ctx context.Context, actx *artifact.Context, h artifact.Helper, name string) (*BatchResult, error) {
	items, err := h.ListLocalItems(ctx, actx, artifact.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate local %s: %w", h.Name(), err)
	}

	result := o.newResult(actx)
	defer result.detach()
	for _, it := range items {
		if it.Name == name || it.Path == name {
			result.candidates = 1
			o.pushOne(ctx, actx, h, it, true)
			return o.complete(actx, result, Push)
		}
	}
	return nil, fmt.Errorf("%w: %s %q", ErrItemNotFound, h.ArtifactName(), name)
}

// Compare delegates to the comparison engine, sharing the operation
// emitter so diff/added/removed events reach the caller's accumulators.
func (o *Orchestrator) Compare(ctx context.Context, actx *artifact.Context, source, target compare.Side) compare.Result {
	engine := compare.NewEngine(o.logger)
	return engine.Compare(ctx, actx, source, target, compare.Options{
		Verbose: o.settings.Verbose,
		List:    o.listOptions(),
	})
}

// newResult creates the batch result and wires its accumulators to the
// operation emitter.
func (o *Orchestrator) newResult(actx *artifact.Context) *BatchResult {
	result := &BatchResult{}
	result.attach(actx.Emitter())
	return result
}

// complete signals the end of a top-level operation and converts the
// result per the continue-on-error setting.
func (o *Orchestrator) complete(actx *artifact.Context, result *BatchResult, d Direction) (*BatchResult, error) {
	actx.Emitter().Emit(artifact.Event{Name: artifact.EventPostProcess})
	return result, result.Err(d, o.settings.ContinueOnError)
}

// listOptions builds the enumeration options from the settings.
func (o *Orchestrator) listOptions() artifact.ListOptions {
	return artifact.ListOptions{
		Offset: o.settings.Offset,
		Limit:  o.settings.Limit,
		Path:   o.settings.Path,
	}
}

// filterItems applies selection filtering after enumeration and before
// transfer: status first, then path prefix for path-addressable types.
func (o *Orchestrator) filterItems(h artifact.Helper, items []artifact.Item) []artifact.Item {
	statuses := o.settings.StatusFilter()

	selected := make([]artifact.Item, 0, len(items))
	for _, it := range items {
		if !statusMatches(it, statuses) {
			continue
		}
		if o.settings.Path != "" && h.IsPathBased() &&
			!strings.HasPrefix(it.Path, o.settings.Path) {
			continue
		}
		selected = append(selected, it)
	}
	return selected
}

func statusMatches(it artifact.Item, statuses []string) bool {
	status := it.EffectiveStatus()
	for _, s := range statuses {
		if status == s {
			return true
		}
	}
	return false
}

// selectRemoteModified keeps items the change store reports as modified.
func (o *Orchestrator) selectRemoteModified(ctx context.Context, actx *artifact.Context, items []artifact.Item) ([]artifact.Item, error) {
	if o.store == nil || o.settings.IgnoreTimestamps {
		return items, nil
	}
	selected := make([]artifact.Item, 0, len(items))
	for _, it := range items {
		modified, err := o.store.IsRemoteModified(ctx, actx.Tenant, it.Path, it.Modified)
		if err != nil {
			return nil, err
		}
		if modified {
			selected = append(selected, it)
		}
	}
	return selected, nil
}

// selectLocalModified keeps items the change store reports as modified.
func (o *Orchestrator) selectLocalModified(ctx context.Context, actx *artifact.Context, items []artifact.Item) ([]artifact.Item, error) {
	if o.store == nil || o.settings.IgnoreTimestamps {
		return items, nil
	}
	selected := make([]artifact.Item, 0, len(items))
	for _, it := range items {
		modified, err := o.store.IsLocalModified(ctx, actx.Tenant, it.Path, it.Modified)
		if err != nil {
			return nil, err
		}
		if modified {
			selected = append(selected, it)
		}
	}
	return selected, nil
}

// forEachSite repeats the batch body once per applicable site for
// site-scoped types, and exactly once otherwise. Sites are filtered by
// the same ready/draft selection as items; counts accumulate into the
// shared result through the shared emitter.
func (o *Orchestrator) forEachSite(actx *artifact.Context, h artifact.Helper, body func(*artifact.Context) error) error {
	if !h.IsSiteScoped() || len(actx.Sites) == 0 {
		return body(actx)
	}

	statuses := o.settings.StatusFilter()
	for _, site := range actx.Sites {
		if !siteMatches(site, statuses) {
			continue
		}
		if err := body(actx.ForSite(site)); err != nil {
			return err
		}
	}
	return nil
}

func siteMatches(site artifact.Site, statuses []string) bool {
	status := site.Status
	if status == "" {
		status = artifact.StatusReady
	}
	for _, s := range statuses {
		if status == s {
			return true
		}
	}
	return false
}

// transfer fans the selected items out with bounded concurrency. Item
// outcomes are independent: a failure emits a terminal error event and
// never cancels or blocks sibling items, so the worker function always
// returns nil.
func (o *Orchestrator) transfer(ctx context.Context, actx *artifact.Context, h artifact.Helper,
	items []artifact.Item, d Direction, ignoreTimestamps bool) {
	o.transferFunc(items, func(it artifact.Item) {
		if d == Push {
			o.pushOne(ctx, actx, h, it, ignoreTimestamps)
		} else {
			o.pullOne(ctx, actx, h, it, ignoreTimestamps)
		}
	})
}

// transferFunc runs fn for every item under the concurrency limit.
func (o *Orchestrator) transferFunc(items []artifact.Item, fn func(artifact.Item)) {
	g := new(errgroup.Group)
	g.SetLimit(o.settings.Concurrency)
	for _, it := range items {
		it := it
		g.Go(func() error {
			fn(it)
			return nil
		})
	}
	// Workers never return errors; Wait only joins them.
	_ = g.Wait()
}

// pullOne transfers one item and emits its terminal event. The change
// record is advanced only on success.
func (o *Orchestrator) pullOne(ctx context.Context, actx *artifact.Context, h artifact.Helper,
	item artifact.Item, ignoreTimestamps bool) (artifact.Item, bool) {
	emitter := h.GetEventEmitter(actx)

	pulled, err := h.PullItem(ctx, actx, item, artifact.PullOptions{IgnoreTimestamps: ignoreTimestamps})
	if err != nil {
		emitter.Emit(artifact.Event{Name: artifact.EventPulledError, Item: item, Err: err})
		return artifact.Item{}, false
	}

	if o.store != nil {
		if err := o.store.SetLastPullTimestamp(ctx, actx.Tenant, pulled.Path, pulled.Modified, pulled.MD5); err != nil {
			emitter.Emit(artifact.Event{
				Name:    artifact.EventPulledWarning,
				Item:    pulled,
				Message: fmt.Sprintf("failed to record pull timestamp for %s: %v", pulled.Path, err),
			})
		}
	}

	emitter.Emit(artifact.Event{Name: artifact.EventPulled, Item: pulled})
	return pulled, true
}

// pushOne transfers one local item and emits its terminal event.
func (o *Orchestrator) pushOne(ctx context.Context, actx *artifact.Context, h artifact.Helper,
	item artifact.Item, ignoreTimestamps bool) (artifact.Item, bool) {
	emitter := h.GetEventEmitter(actx)

	pushed, err := h.PushItem(ctx, actx, item, artifact.PushOptions{
		IgnoreTimestamps: ignoreTimestamps,
		CreateOnly:       o.settings.CreateOnly,
	})
	if err != nil {
		emitter.Emit(artifact.Event{Name: artifact.EventPushedError, Item: item, Err: err})
		return artifact.Item{}, false
	}

	if o.store != nil {
		if err := o.store.SetLastPushTimestamp(ctx, actx.Tenant, pushed.Path, pushed.Modified, pushed.MD5); err != nil {
			emitter.Emit(artifact.Event{
				Name:    artifact.EventPushedWarning,
				Item:    pushed,
				Message: fmt.Sprintf("failed to record push timestamp for %s: %v", pushed.Path, err),
			})
		}
	}

	emitter.Emit(artifact.Event{Name: artifact.EventPushed, Item: pushed})
	return pushed, true
}

// resolveRemote finds one remote item by name or path.
func (o *Orchestrator) resolveRemote(ctx context.Context, actx *artifact.Context, h artifact.Helper, name string) (artifact.Item, error) {
	matches, err := h.SearchRemote(ctx, actx, name)
	if err != nil {
		return artifact.Item{}, fmt.Errorf("failed to search remote %s: %w", h.Name(), err)
	}
	for _, it := range matches {
		if it.Name == name || it.Path == name {
			return it, nil
		}
	}
	if len(matches) == 1 {
		return matches[0], nil
	}
	return artifact.Item{}, fmt.Errorf("%w: %s %q", ErrItemNotFound, h.ArtifactName(), name)
}
