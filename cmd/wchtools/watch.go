package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/acoustic-content-samples/wchtools-cli-sub005/internal/daemon"
	"github.com/acoustic-content-samples/wchtools-cli-sub005/internal/orchestrator"
	"github.com/acoustic-content-samples/wchtools-cli-sub005/internal/ui"
)

var watchCmd = &cobra.Command{
	Use:   "watch [type...]",
	Short: "Watch the working directory and push changes as they happen",
	Long: `Watch the local artifact directories and push modified items to the
tenant whenever files change.

Changes are coalesced per artifact type over a short quiet period, so a
burst of writes triggers one push batch per affected type. Runs in the
foreground until interrupted.`,
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
		a.loadSites(cmd.Context(), helpers)

		typeNames := make([]string, 0, len(helpers))
		for _, h := range helpers {
			typeNames = append(typeNames, h.Name())
		}

		debounce, _ := cmd.Flags().GetDuration("debounce")
		d, err := daemon.New(daemon.Config{
			Dir:      a.dir,
			Types:    typeNames,
			Debounce: debounce,
		}, func(ctx context.Context, typeName string) error {
			h, ok := a.registry.Lookup(typeName)
			if !ok {
				return fmt.Errorf("no helper registered for %s", typeName)
			}
			result, err := a.orch.PushModified(ctx, a.actx, h)
			if err != nil {
				return err
			}
			fmt.Printf("%s %s: %s\n", ui.RenderPass("✓"), typeName, result.Report(orchestrator.Push, true))
			return nil
		}, a.logger)
		if err != nil {
			fail("%v", err)
			os.Exit(1)
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if err := d.Start(ctx); err != nil {
			fail("%v", err)
			os.Exit(1)
		}

		fmt.Printf("%s Watching %s for changes. Press Ctrl+C to stop.\n",
			ui.RenderAccent("👁"), a.dir)

		<-ctx.Done()
		fmt.Printf("\n%s Stopping...\n", ui.RenderAccent("•"))
		if err := d.Stop(); err != nil {
			fail("%v", err)
			os.Exit(1)
		}
	},
}

func init() {
	f := watchCmd.Flags()
	f.Duration("debounce", 500*time.Millisecond, "quiet period before pushing coalesced changes")
	f.BoolP("ignore-timestamps", "I", false, "push changed files regardless of the recorded timestamps")

	rootCmd.AddCommand(watchCmd)
}
