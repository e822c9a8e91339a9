package orchestrator

import (
	"fmt"
	"strings"

	"github.com/acoustic-content-samples/wchtools-cli-sub005/internal/artifact"
)

// Direction selects pull or push semantics for a batch.
type Direction int

const (
	// Pull transfers remote items to the local filesystem.
	Pull Direction = iota
	// Push transfers local items to the remote service.
	Push
)

// verb returns the past-tense verb for report messages.
func (d Direction) verb() string {
	if d == Push {
		return "pushed"
	}
	return "pulled"
}

// gerund returns the progressive verb for error messages.
func (d Direction) gerund() string {
	if d == Push {
		return "pushing"
	}
	return "pulling"
}

// ItemError pairs a failed item with its error.
type ItemError struct {
	Item artifact.Item
	Err  error
}

// BatchResult aggregates the outcome of one orchestrator invocation.
// It is accumulated from lifecycle events; because terminal events for
// different items may interleave in any order, accumulation is strictly
// commutative: counts and unordered lists only.
type BatchResult struct {
	Succeeded []artifact.Item
	Failed    []ItemError
	Warnings  []string

	// Deletion outcomes from the local-only sub-protocol, counted
	// separately from transfer errors.
	DeletionsOK     int
	DeletionsFailed int

	// candidates is the number of items selected for transfer, used to
	// distinguish "nothing to do" from "nothing matched".
	candidates int

	// removals unregister the accumulators once the batch completes.
	removals []func()
}

// attach registers the commutative accumulators on the operation
// emitter. Handlers run under the emitter lock, so no extra locking is
// needed here.
func (r *BatchResult) attach(e *artifact.Emitter) {
	r.removals = append(r.removals,
		e.On(artifact.EventPulled, func(ev artifact.Event) {
			r.Succeeded = append(r.Succeeded, ev.Item)
		}),
		e.On(artifact.EventPushed, func(ev artifact.Event) {
			r.Succeeded = append(r.Succeeded, ev.Item)
		}),
		e.On(artifact.EventPulledError, func(ev artifact.Event) {
			r.Failed = append(r.Failed, ItemError{Item: ev.Item, Err: ev.Err})
		}),
		e.On(artifact.EventPushedError, func(ev artifact.Event) {
			r.Failed = append(r.Failed, ItemError{Item: ev.Item, Err: ev.Err})
		}),
		e.On(artifact.EventPulledWarning, func(ev artifact.Event) {
			r.Warnings = append(r.Warnings, ev.Message)
		}),
		e.On(artifact.EventPushedWarning, func(ev artifact.Event) {
			r.Warnings = append(r.Warnings, ev.Message)
		}),
	)
}

// detach unregisters the accumulators. A completed batch must not keep
// mutating while later batches emit on the same operation emitter.
func (r *BatchResult) detach() {
	for _, off := range r.removals {
		off()
	}
	r.removals = nil
}

// pluralize renders "1 artifact" / "2 artifacts".
func pluralize(n int, noun string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s", noun)
	}
	return fmt.Sprintf("%d %ss", n, noun)
}

// Report renders the human-readable batch summary.
//
// The literal phrasings are part of the observable contract: callers
// assert on "N artifacts successfully ...", "N errors", "No items
// pulled", "No items to be pulled", and the "-I option" suggestion.
func (r *BatchResult) Report(d Direction, modifiedOnly bool) string {
	var b strings.Builder

	switch {
	case len(r.Succeeded) > 0:
		fmt.Fprintf(&b, "%s successfully %s.", pluralize(len(r.Succeeded), "artifact"), d.verb())
	case modifiedOnly && len(r.Failed) == 0:
		fmt.Fprintf(&b, "No items %s. Use the -I option to %s items regardless of the timestamps.",
			d.verb(), strings.TrimSuffix(d.verb(), "ed"))
	case len(r.Failed) == 0:
		fmt.Fprintf(&b, "No items to be %s.", d.verb())
	}

	if len(r.Failed) > 0 {
		if b.Len() > 0 {
			b.WriteString(" ")
		}
		fmt.Fprintf(&b, "%s encountered while %s artifacts. See the log file for details.",
			pluralize(len(r.Failed), "error"), d.gerund())
	}
	if len(r.Warnings) > 0 {
		if b.Len() > 0 {
			b.WriteString(" ")
		}
		fmt.Fprintf(&b, "%s reported.", pluralize(len(r.Warnings), "warning"))
	}
	if r.DeletionsOK > 0 || r.DeletionsFailed > 0 {
		if b.Len() > 0 {
			b.WriteString(" ")
		}
		fmt.Fprintf(&b, "%s deleted locally.", pluralize(r.DeletionsOK, "artifact"))
		if r.DeletionsFailed > 0 {
			fmt.Fprintf(&b, " %s could not be deleted.", pluralize(r.DeletionsFailed, "artifact"))
		}
	}

	return b.String()
}

// Err returns the aggregate failure when continueOnError is disabled
// and at least one item failed. All per-item attempts have already run
// to completion by the time this is consulted.
func (r *BatchResult) Err(d Direction, continueOnError bool) error {
	if continueOnError || len(r.Failed) == 0 {
		return nil
	}
	return fmt.Errorf("%s encountered while %s artifacts: %v",
		pluralize(len(r.Failed), "error"), d.gerund(), r.Failed[0].Err)
}
