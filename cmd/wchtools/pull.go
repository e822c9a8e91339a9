package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/acoustic-content-samples/wchtools-cli-sub005/internal/manifest"
	"github.com/acoustic-content-samples/wchtools-cli-sub005/internal/orchestrator"
	"github.com/acoustic-content-samples/wchtools-cli-sub005/internal/ui"
)

var pullCmd = &cobra.Command{
	Use:   "pull [type...]",
	Short: "Pull artifacts from the tenant into the working directory",
	Long: `Pull artifacts from the tenant into the local working directory.

By default only items modified since the last recorded pull are
transferred, one batch per artifact type. Name one or more types to
restrict the operation; otherwise every registered type is pulled.

Use -I to transfer every item regardless of the recorded timestamps,
--manifest to pull exactly the items a manifest records, --named to pull
a single item, or --by-type-name to pull content of one type with all
its referenced artifacts.`,
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
			result, err := a.orch.PullByManifest(ctx, a.actx, man)
			if err != nil {
				fail("%v", err)
				os.Exit(1)
			}
			fmt.Printf("%s %s\n", ui.RenderPass("✓"), result.Report(orchestrator.Pull, false))
			return
		}

		if byTypeName, _ := cmd.Flags().GetString("by-type-name"); byTypeName != "" {
			runPullByTypeName(a, cmd, byTypeName)
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
				result, err = a.orch.PullItem(ctx, a.actx, h, a.settings.Named)
			case a.settings.IgnoreTimestamps:
				result, err = a.orch.PullAll(ctx, a.actx, h)
			default:
				result, err = a.orch.PullModified(ctx, a.actx, h)
			}
			if err != nil {
				fail("%s: %v", h.Name(), err)
				failed = true
				continue
			}
			fmt.Printf("%s %s: %s\n", ui.RenderPass("✓"), h.Name(), result.Report(orchestrator.Pull, modifiedOnly))
		}
		if failed {
			os.Exit(1)
		}
	},
}

// runPullByTypeName pulls the content of one named type plus everything
// it references.
func runPullByTypeName(a *app, cmd *cobra.Command, typeName string) {
	contentHelper, ok := a.registry.Lookup("content")
	if !ok {
		fail("pull by type name requires the content artifact type")
		os.Exit(1)
	}

	result, err := a.orch.PullByTypeName(cmd.Context(), a.actx, contentHelper, typeName)
	if err != nil {
		fail("%v", err)
		os.Exit(1)
	}
	fmt.Printf("%s %s\n", ui.RenderPass("✓"), result.Report(orchestrator.Pull, false))
}

func init() {
	f := pullCmd.Flags()
	f.BoolP("ignore-timestamps", "I", false, "pull items regardless of the recorded timestamps")
	f.Bool("ready", false, "pull only ready items (the default)")
	f.Bool("draft", false, "pull only draft items")
	f.String("path", "", "pull only items under this path prefix (path-based types)")
	f.String("named", "", "pull a single item by name or path")
	f.String("manifest", "", "pull the items recorded in this manifest file")
	f.String("by-type-name", "", "pull content of this type with its referenced artifacts")
	f.Bool("deletions", false, "delete local items no longer present on the tenant")
	f.Bool("continue-on-error", true, "keep the operation successful despite item failures")
	f.Int("offset", 0, "enumeration offset")
	f.Int("limit", 0, "enumeration page size")
	f.Int("concurrency", 0, "maximum concurrent transfers per batch")

	rootCmd.AddCommand(pullCmd)
}
