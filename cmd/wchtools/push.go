package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/acoustic-content-samples/wchtools-cli-sub005/internal/manifest"
	"github.com/acoustic-content-samples/wchtools-cli-sub005/internal/orchestrator"
	"github.com/acoustic-content-samples/wchtools-cli-sub005/internal/ui"
)

var pushCmd = &cobra.Command{
	Use:   "push [type...]",
	Short: "Push local artifacts to the tenant",
	Long: `Push local artifacts from the working directory to the tenant.

By default only items changed since the last recorded push are
transferred, one batch per artifact type. Items without a remote id are
created; existing items are updated unless --create-only is given.`,
	Run: func(cmd *cobra.Command, args []string) {
		a, err := newApp(cmd)
		if err != nil {
			fail("%v", err)
			os.Exit(1)
		}
		defer a.Close()

		ctx := cmd.Context()

		if a.settings.ManifestRef != "" {
			man, err := manifest.Initialize(a.settings.ManifestRef)
			if err != nil {
				fail("%v", err)
				os.Exit(1)
			}
			result, err := a.orch.PushByManifest(ctx, a.actx, man)
			if err != nil {
				fail("%v", err)
				os.Exit(1)
			}
			fmt.Printf("%s %s\n", ui.RenderPass("✓"), result.Report(orchestrator.Push, false))
			return
		}

		helpers, err := a.selectedHelpers(args)
		if err != nil {
			fail("%v", err)
			os.Exit(1)
		}
		a.loadSites(ctx, helpers)

		modifiedOnly := !a.settings.IgnoreTimestamps && a.settings.Named == ""
		failed := false
		for _, h := range helpers {
			var result *orchestrator.BatchResult
			switch {
			case a.settings.Named != "":
				result, err = a.orch.PushItem(ctx, a.actx, h, a.settings.Named)
			case a.settings.IgnoreTimestamps:
				result, err = a.orch.PushAll(ctx, a.actx, h)
			default:
				result, err = a.orch.PushModified(ctx, a.actx, h)
			}
			if err != nil {
				fail("%s: %v", h.Name(), err)
				failed = true
				continue
			}
			fmt.Printf("%s %s: %s\n", ui.RenderPass("✓"), h.Name(), result.Report(orchestrator.Push, modifiedOnly))
		}
		if failed {
			os.Exit(1)
		}
	},
}

func init() {
	f := pushCmd.Flags()
	f.BoolP("ignore-timestamps", "I", false, "push items regardless of the recorded timestamps")
	f.Bool("ready", false, "push only ready items (the default)")
	f.Bool("draft", false, "push only draft items")
	f.String("path", "", "push only items under this path prefix (path-based types)")
	f.String("named", "", "push a single item by name or path")
	f.String("manifest", "", "push the items recorded in this manifest file")
	f.Bool("create-only", false, "never update existing remote items")
	f.Bool("continue-on-error", true, "keep the operation successful despite item failures")
	f.Int("concurrency", 0, "maximum concurrent transfers per batch")

	rootCmd.AddCommand(pushCmd)
}
