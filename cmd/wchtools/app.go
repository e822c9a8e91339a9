package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/acoustic-content-samples/wchtools-cli-sub005/internal/artifact"
	"github.com/acoustic-content-samples/wchtools-cli-sub005/internal/hashes"
	"github.com/acoustic-content-samples/wchtools-cli-sub005/internal/options"
	"github.com/acoustic-content-samples/wchtools-cli-sub005/internal/orchestrator"
	"github.com/acoustic-content-samples/wchtools-cli-sub005/internal/resthelper"
	"github.com/acoustic-content-samples/wchtools-cli-sub005/internal/retry"
	"github.com/acoustic-content-samples/wchtools-cli-sub005/internal/ui"
)

// artifactTypes describes every artifact type the client synchronizes.
// The registry is built from this table; the order here is the default
// processing order when no types are named on the command line.
var artifactTypes = []resthelper.TypeDescriptor{
	{Name: "image-profiles", ArtifactName: "image profile", Endpoint: "/authoring/v1/image-profiles"},
	{Name: "categories", ArtifactName: "category", Endpoint: "/authoring/v1/categories"},
	{Name: "assets", ArtifactName: "asset", Endpoint: "/authoring/v1/assets", PathBased: true},
	{Name: "layouts", ArtifactName: "layout", Endpoint: "/authoring/v1/layouts", PathBased: true},
	{Name: "types", ArtifactName: "type", Endpoint: "/authoring/v1/types"},
	{Name: "layout-mappings", ArtifactName: "layout mapping", Endpoint: "/authoring/v1/layout-mappings"},
	{Name: "content", ArtifactName: "content item", Endpoint: "/authoring/v1/content"},
	{Name: "sites", ArtifactName: "site", Endpoint: "/sites/v1/sites"},
	{Name: "pages", ArtifactName: "page", Endpoint: "/sites/v1/pages", SiteScoped: true},
}

// app holds the wired collaborators for one CLI invocation.
type app struct {
	settings *options.Settings
	store    *hashes.Store
	registry *artifact.Registry
	orch     *orchestrator.Orchestrator
	actx     *artifact.Context
	logger   *log.Logger
	dir      string
}

// newApp binds the command's flags into viper, resolves the settings,
// and wires the store, registry, and orchestrator.
func newApp(cmd *cobra.Command) (*app, error) {
	bindFlags(cmd)

	settings, err := options.Load(viper.GetViper())
	if err != nil {
		return nil, err
	}

	dir := viper.GetString("dir")
	tenant := viper.GetString("tenant")
	baseURL := strings.TrimSuffix(viper.GetString("url"), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("no API base URL configured; set --url or the url config key")
	}
	if tenant == "" {
		return nil, fmt.Errorf("no tenant configured; set --tenant or the tenant config key")
	}

	tier := artifact.Tier(viper.GetString("tier"))
	switch tier {
	case artifact.TierBase, artifact.TierStandard:
	default:
		return nil, fmt.Errorf("unknown tier %q; expected Base or Standard", tier)
	}

	logger := newLogger(dir)

	store, err := hashes.Open(filepath.Join(dir, ".wchtools", "hashes.db"))
	if err != nil {
		return nil, fmt.Errorf("failed to open change-tracking store: %w", err)
	}

	registry := artifact.NewRegistry()
	for _, desc := range artifactTypes {
		if !tier.Allows(desc.Name) {
			continue
		}
		executor := retry.NewExecutor(settings.RetryFor(desc.Name), logger)
		registry.Register(resthelper.New(desc, baseURL, dir, nil, executor, logger))
	}

	var prompter ui.Prompter
	if !settings.Quiet {
		prompter = ui.NewConfirmPrompter()
	}

	return &app{
		settings: settings,
		store:    store,
		registry: registry,
		orch:     orchestrator.New(registry, store, settings, prompter, logger),
		actx:     artifact.NewContext(tenant, tier, logger),
		logger:   logger,
		dir:      dir,
	}, nil
}

// Close releases the change-tracking store.
func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		a.logger.Printf("WARNING: failed to close change-tracking store: %v", err)
	}
}

// newLogger writes to a size-rotated log file in the working directory.
func newLogger(dir string) *log.Logger {
	return log.New(&lumberjack.Logger{
		Filename:   filepath.Join(dir, ".wchtools", "wchtools-cli.log"),
		MaxSize:    10, // megabytes
		MaxBackups: 3,
	}, "[wchtools] ", log.LstdFlags)
}

// selectedHelpers resolves the type names given on the command line, or
// every registered type when none are named.
func (a *app) selectedHelpers(args []string) ([]artifact.Helper, error) {
	names := args
	if len(names) == 0 {
		names = a.registry.Names()
	}

	helpers := make([]artifact.Helper, 0, len(names))
	for _, name := range names {
		h, ok := a.registry.Lookup(name)
		if !ok {
			return nil, fmt.Errorf("unknown artifact type %q; available: %s",
				name, strings.Join(a.registry.Names(), ", "))
		}
		helpers = append(helpers, h)
	}
	return helpers, nil
}

// loadSites populates the context's site list when any selected type is
// site-scoped. A failure is advisory: site-scoped types then run once
// against the default scope.
func (a *app) loadSites(ctx context.Context, helpers []artifact.Helper) {
	needed := false
	for _, h := range helpers {
		if h.IsSiteScoped() {
			needed = true
			break
		}
	}
	if !needed {
		return
	}

	sitesHelper, ok := a.registry.Lookup("sites")
	if !ok {
		return
	}
	items, err := sitesHelper.ListRemoteItems(ctx, a.actx, artifact.ListOptions{Limit: a.settings.Limit})
	if err != nil {
		a.logger.Printf("WARNING: failed to enumerate sites: %v", err)
		return
	}
	for _, it := range items {
		a.actx.Sites = append(a.actx.Sites, artifact.Site{
			ID:     it.ID,
			Name:   it.Name,
			Status: it.EffectiveStatus(),
		})
	}
}

// bindFlags maps the command's kebab-case flags onto the camelCase viper
// keys the options package reads.
func bindFlags(cmd *cobra.Command) {
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		viper.BindPFlag(camelKey(f.Name), f)
	})
}

func camelKey(flagName string) string {
	parts := strings.Split(flagName, "-")
	key := parts[0]
	for _, p := range parts[1:] {
		if p == "" {
			continue
		}
		key += strings.ToUpper(p[:1]) + p[1:]
	}
	return key
}

// fail prints a fatal CLI error.
func fail(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "%s "+format+"\n", append([]any{ui.RenderFail("✗")}, args...)...)
}
