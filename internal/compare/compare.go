// Package compare walks two artifact sets and produces a structural diff
// per item plus aggregate counts. Comparison is advisory tooling, not a
// transfer operation: a failure of the underlying enumeration degrades to
// an empty result instead of aborting the reporting path.
package compare

import (
	"context"
	"fmt"
	"log"
	"os"
	"reflect"
	"sort"

	"github.com/acoustic-content-samples/wchtools-cli-sub005/internal/artifact"
)

// Side is one comparable artifact set: a helper plus the flag selecting
// its remote or local enumeration.
type Side struct {
	Helper artifact.Helper
	Remote bool
}

// Options tunes one comparison run.
type Options struct {
	// Verbose includes the changed/added/removed node paths in diff
	// events.
	Verbose bool

	// List scopes both enumerations.
	List artifact.ListOptions
}

// Result aggregates one comparison run.
type Result struct {
	// TotalCount is the number of item pairings examined.
	TotalCount int

	// DiffCount is the number of pairings that differ: changed content,
	// present only in target (added), or present only in source
	// (removed).
	DiffCount int
}

// Engine compares artifact sets.
type Engine struct {
	logger *log.Logger
}

// NewEngine creates a comparison engine. If logger is nil, a default
// logger writing to stderr is used.
func NewEngine(logger *log.Logger) *Engine {
	if logger == nil {
		logger = log.New(os.Stderr, "[compare] ", log.LstdFlags)
	}
	return &Engine{logger: logger}
}

// Compare enumerates both sides, matches items by identity key (id when
// present, path otherwise), and emits one diff/added/removed event per
// differing pairing on the operation emitter.
func (e *Engine) Compare(ctx context.Context, actx *artifact.Context, source, target Side, opts Options) Result {
	sourceItems, err := list(ctx, actx, source, opts.List)
	if err != nil {
		e.logger.Printf("source enumeration failed, reporting empty comparison: %v", err)
		return Result{}
	}
	targetItems, err := list(ctx, actx, target, opts.List)
	if err != nil {
		e.logger.Printf("target enumeration failed, reporting empty comparison: %v", err)
		return Result{}
	}

	emitter := actx.Emitter()
	byKey := make(map[string]artifact.Item, len(targetItems))
	for _, it := range targetItems {
		byKey[it.Key()] = it
	}

	var result Result
	for _, src := range sourceItems {
		result.TotalCount++

		tgt, ok := byKey[src.Key()]
		if !ok {
			// Present in source, absent in target.
			result.DiffCount++
			emitter.Emit(artifact.Event{Name: artifact.EventRemoved, Item: src})
			continue
		}
		delete(byKey, src.Key())

		nodes, err := source.Helper.CompareItem(ctx, actx, src, tgt)
		if err != nil {
			e.logger.Printf("failed to compare %s: %v", src.Path, err)
			continue
		}
		if len(nodes) == 0 {
			continue
		}

		result.DiffCount++
		ev := artifact.Event{Name: artifact.EventDiff, Item: src}
		if opts.Verbose {
			ev.Message = fmt.Sprintf("changed nodes: %v", nodes)
		}
		emitter.Emit(ev)
	}

	// Whatever remains in the target map has no source counterpart.
	for _, tgt := range byKey {
		result.TotalCount++
		result.DiffCount++
		emitter.Emit(artifact.Event{Name: artifact.EventAdded, Item: tgt})
	}

	return result
}

func list(ctx context.Context, actx *artifact.Context, side Side, opts artifact.ListOptions) ([]artifact.Item, error) {
	if side.Remote {
		return side.Helper.ListRemoteItems(ctx, actx, opts)
	}
	return side.Helper.ListLocalItems(ctx, actx, opts)
}

// DiffNodes structurally compares two payloads and returns the dotted
// node paths that are changed, added, or removed, in sorted order.
// Helpers use it to implement CompareItem.
func DiffNodes(source, target map[string]any) []string {
	nodes := make(map[string]struct{})
	diffValue("", source, target, nodes)

	out := make([]string, 0, len(nodes))
	for node := range nodes {
		out = append(out, node)
	}
	sort.Strings(out)
	return out
}

// diffValue records the paths at which a and b disagree.
func diffValue(prefix string, a, b any, nodes map[string]struct{}) {
	am, aIsMap := a.(map[string]any)
	bm, bIsMap := b.(map[string]any)
	if aIsMap && bIsMap {
		for key, av := range am {
			bv, ok := bm[key]
			if !ok {
				nodes[join(prefix, key)] = struct{}{}
				continue
			}
			diffValue(join(prefix, key), av, bv, nodes)
		}
		for key := range bm {
			if _, ok := am[key]; !ok {
				nodes[join(prefix, key)] = struct{}{}
			}
		}
		return
	}

	if !reflect.DeepEqual(a, b) {
		if prefix == "" {
			prefix = "."
		}
		nodes[prefix] = struct{}{}
	}
}

func join(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + "." + key
}
