package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/acoustic-content-samples/wchtools-cli-sub005/internal/artifact"
	"github.com/acoustic-content-samples/wchtools-cli-sub005/internal/ui"
)

var listCmd = &cobra.Command{
	Use:   "list [type...]",
	Short: "List artifacts per type",
	Long: `List the artifacts of each named type, or of every registered type.

Local items are listed by default; --remote lists the items on the
tenant instead.`,
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

		remote, _ := cmd.Flags().GetBool("remote")
		opts := artifact.ListOptions{
			Offset: a.settings.Offset,
			Limit:  a.settings.Limit,
			Path:   a.settings.Path,
		}

		failed := false
		for _, h := range helpers {
			var names []string
			if remote {
				items, err := h.ListRemoteItems(cmd.Context(), a.actx, opts)
				if err != nil {
					fail("%s: %v", h.Name(), err)
					failed = true
					continue
				}
				for _, it := range items {
					name := it.Name
					if name == "" {
						name = it.Path
					}
					names = append(names, name)
				}
			} else {
				names, err = h.ListNames(cmd.Context(), a.actx, opts)
				if err != nil {
					fail("%s: %v", h.Name(), err)
					failed = true
					continue
				}
			}

			fmt.Printf("%s %s (%d)\n", ui.RenderAccent("•"), h.Name(), len(names))
			for _, name := range names {
				fmt.Printf("   %s\n", name)
			}
		}
		if failed {
			os.Exit(1)
		}
	},
}

func init() {
	f := listCmd.Flags()
	f.Bool("remote", false, "list the items on the tenant instead of local items")
	f.String("path", "", "list only items under this path prefix (path-based types)")
	f.Int("offset", 0, "enumeration offset")
	f.Int("limit", 0, "enumeration page size")

	rootCmd.AddCommand(listCmd)
}
