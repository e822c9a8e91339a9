package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/acoustic-content-samples/wchtools-cli-sub005/internal/artifact"
	"github.com/acoustic-content-samples/wchtools-cli-sub005/internal/manifest"
	"github.com/acoustic-content-samples/wchtools-cli-sub005/internal/ui"
)

var deleteCmd = &cobra.Command{
	Use:   "delete <type>",
	Short: "Delete a local artifact",
	Long: `Delete one local artifact by name or path, including its binary
resource and its change-tracking record. The item on the tenant is not
touched.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		a, err := newApp(cmd)
		if err != nil {
			fail("%v", err)
			os.Exit(1)
		}
		defer a.Close()

		if a.settings.Named == "" {
			fail("--named is required")
			os.Exit(1)
		}

		h, ok := a.registry.Lookup(args[0])
		if !ok {
			fail("unknown artifact type %q", args[0])
			os.Exit(1)
		}

		items, err := h.ListLocalItems(cmd.Context(), a.actx, artifact.ListOptions{})
		if err != nil {
			fail("%v", err)
			os.Exit(1)
		}

		for _, it := range items {
			if it.Name != a.settings.Named && it.Path != a.settings.Named {
				continue
			}
			if err := a.orch.DeleteLocalItem(cmd.Context(), a.actx, h, it); err != nil {
				fail("%v", err)
				os.Exit(1)
			}
			fmt.Printf("%s Deleted local %s %s.\n", ui.RenderPass("✓"), h.ArtifactName(), it.Path)
			removeManifestEntry(cmd, h.Name(), it)
			return
		}

		fail("no local %s named %q", h.ArtifactName(), a.settings.Named)
		os.Exit(1)
	},
}

// removeManifestEntry drops the deleted item from the manifest named by
// --from-manifest, so a later manifest-driven push does not recreate it.
// The deletion itself already happened; manifest trouble is a warning.
func removeManifestEntry(cmd *cobra.Command, typeName string, it artifact.Item) {
	path, _ := cmd.Flags().GetString("from-manifest")
	if path == "" {
		return
	}

	man, err := manifest.Initialize(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s %v\n", ui.RenderWarn("⚠"), err)
		return
	}
	man.RemoveEntry(typeName, it.Key())
	if err := man.Save(); err != nil {
		fmt.Fprintf(os.Stderr, "%s %v\n", ui.RenderWarn("⚠"), err)
	}
}

func init() {
	f := deleteCmd.Flags()
	f.String("named", "", "name or path of the item to delete")
	f.String("from-manifest", "", "also remove the deleted item from this manifest file")

	rootCmd.AddCommand(deleteCmd)
}
