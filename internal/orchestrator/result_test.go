package orchestrator

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/acoustic-content-samples/wchtools-cli-sub005/internal/artifact"
)

// accumulate builds a BatchResult by emitting the given numbers of
// terminal events concurrently, so the arrival order is arbitrary.
func accumulate(successes, failures, warnings int) *BatchResult {
	emitter := artifact.NewEmitter()
	result := &BatchResult{}
	result.attach(emitter)

	var wg sync.WaitGroup
	emit := func(ev artifact.Event) {
		defer wg.Done()
		emitter.Emit(ev)
	}
	for i := 0; i < successes; i++ {
		wg.Add(1)
		go emit(artifact.Event{Name: artifact.EventPulled,
			Item: artifact.Item{Path: fmt.Sprintf("items/%d.json", i)}})
	}
	for i := 0; i < failures; i++ {
		wg.Add(1)
		go emit(artifact.Event{Name: artifact.EventPulledError,
			Item: artifact.Item{Path: fmt.Sprintf("items/bad-%d.json", i)},
			Err:  errors.New("transfer failed")})
	}
	for i := 0; i < warnings; i++ {
		wg.Add(1)
		go emit(artifact.Event{Name: artifact.EventPulledWarning, Message: "w"})
	}
	wg.Wait()

	return result
}

func TestAggregationIsOrderIndependent(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("counts match the emitted multiset under any interleaving", prop.ForAll(
		func(successes, failures, warnings uint8) bool {
			result := accumulate(int(successes), int(failures), int(warnings))
			return len(result.Succeeded) == int(successes) &&
				len(result.Failed) == int(failures) &&
				len(result.Warnings) == int(warnings)
		},
		gen.UInt8Range(0, 32),
		gen.UInt8Range(0, 32),
		gen.UInt8Range(0, 32),
	))

	properties.Property("the rendered report depends only on the multiset", prop.ForAll(
		func(successes, failures, warnings uint8) bool {
			a := accumulate(int(successes), int(failures), int(warnings))
			b := accumulate(int(successes), int(failures), int(warnings))
			return a.Report(Pull, false) == b.Report(Pull, false)
		},
		gen.UInt8Range(0, 32),
		gen.UInt8Range(0, 32),
		gen.UInt8Range(0, 32),
	))

	properties.TestingRun(t)
}

func TestReportMessages(t *testing.T) {
	tests := []struct {
		name         string
		successes    int
		failures     int
		direction    Direction
		modifiedOnly bool
		want         string
	}{
		{
			name: "single pulled artifact", successes: 1, direction: Pull,
			want: "1 artifact successfully pulled.",
		},
		{
			name: "multiple pushed artifacts", successes: 3, direction: Push,
			want: "3 artifacts successfully pushed.",
		},
		{
			name: "nothing modified suggests ignoring timestamps", direction: Pull, modifiedOnly: true,
			want: "No items pulled. Use the -I option to pull items regardless of the timestamps.",
		},
		{
			name: "nothing modified on push", direction: Push, modifiedOnly: true,
			want: "No items pushed. Use the -I option to push items regardless of the timestamps.",
		},
		{
			name: "nothing to transfer", direction: Pull,
			want: "No items to be pulled.",
		},
		{
			name: "successes and errors", successes: 2, failures: 1, direction: Pull,
			want: "2 artifacts successfully pulled. 1 error encountered while pulling artifacts. See the log file for details.",
		},
		{
			name: "errors only", failures: 4, direction: Push,
			want: "4 errors encountered while pushing artifacts. See the log file for details.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := accumulate(tt.successes, tt.failures, 0)
			if got := result.Report(tt.direction, tt.modifiedOnly); got != tt.want {
				t.Errorf("Report() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestErrRespectsContinueOnError(t *testing.T) {
	result := accumulate(1, 2, 0)

	if err := result.Err(Pull, true); err != nil {
		t.Errorf("continueOnError=true should suppress the aggregate error, got %v", err)
	}
	err := result.Err(Pull, false)
	if err == nil {
		t.Fatal("continueOnError=false with failures should produce an error")
	}
	if got := err.Error(); got[:8] != "2 errors" {
		t.Errorf("aggregate error %q should lead with the count", got)
	}

	clean := accumulate(2, 0, 0)
	if err := clean.Err(Pull, false); err != nil {
		t.Errorf("no failures should never error, got %v", err)
	}
}
