package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/acoustic-content-samples/wchtools-cli-sub005/internal/artifact"
	"github.com/acoustic-content-samples/wchtools-cli-sub005/internal/compare"
	"github.com/acoustic-content-samples/wchtools-cli-sub005/internal/ui"
)

var compareCmd = &cobra.Command{
	Use:   "compare [type...]",
	Short: "Compare tenant artifacts against the working directory",
	Long: `Compare the artifacts on the tenant against the local working
directory, per type. Differing, tenant-only, and local-only items are
listed; --verbose adds the changed payload nodes per item.

Comparison is read-only and advisory: it never transfers anything, and
an enumeration failure yields an empty comparison instead of an error.`,
	Run: func(cmd *cobra.Command, args []string) {
		a, err := newApp(cmd)
		if err != nil {
			fail("%v", err)
			os.Exit(1)
		}
		defer a.Close()

		helpers, err := a.selectedHelpers(args)
		if err != nil {
			fail("%v", err)
			os.Exit(1)
		}

		emitter := a.actx.Emitter()
		emitter.On(artifact.EventDiff, func(ev artifact.Event) {
			fmt.Printf("   %s %s", ui.RenderWarn("≠"), ev.Item.Path)
			if ev.Message != "" {
				fmt.Printf(" (%s)", ev.Message)
			}
			fmt.Println()
		})
		emitter.On(artifact.EventRemoved, func(ev artifact.Event) {
			fmt.Printf("   %s %s (tenant only)\n", ui.RenderAccent("+"), ev.Item.Path)
		})
		emitter.On(artifact.EventAdded, func(ev artifact.Event) {
			fmt.Printf("   %s %s (local only)\n", ui.RenderAccent("-"), ev.Item.Path)
		})

		for _, h := range helpers {
			fmt.Printf("%s %s\n", ui.RenderAccent("•"), h.Name())
			result := a.orch.Compare(cmd.Context(), a.actx,
				compare.Side{Helper: h, Remote: true},
				compare.Side{Helper: h, Remote: false})

			if result.DiffCount == 0 {
				fmt.Printf("   %s %d items, no differences\n", ui.RenderPass("✓"), result.TotalCount)
			} else {
				fmt.Printf("   %s %d of %d items differ\n",
					ui.RenderWarn("⚠"), result.DiffCount, result.TotalCount)
			}
		}
	},
}

func init() {
	f := compareCmd.Flags()
	f.String("path", "", "compare only items under this path prefix (path-based types)")
	f.Int("offset", 0, "enumeration offset")
	f.Int("limit", 0, "enumeration page size")

	rootCmd.AddCommand(compareCmd)
}
