package artifact

import (
	"log"
	"os"
)

// Tier is the tenant subscription level. It gates which artifact types
// and operations are permitted; tier violations are fatal batch-level
// errors, never retried.
type Tier string

const (
	// TierBase forbids site-scoped artifact types.
	TierBase Tier = "Base"
	// TierStandard permits every artifact type.
	TierStandard Tier = "Standard"
)

// Allows reports whether the tier permits the named artifact type.
func (t Tier) Allows(typeName string) bool {
	if t == TierBase {
		switch typeName {
		case "sites", "pages":
			return false
		}
	}
	return true
}

// Context carries the identity and collaborators for one top-level
// operation: tenant and tier, the applicable site list, the operation's
// event emitter, and the logger.
//
// One Context is created per CLI invocation. The emitter is owned by the
// context so concurrent invocations stay isolated.
type Context struct {
	// Tenant identifies the target tenant/server; it keys the change
	// records in the hashes store.
	Tenant string

	// Tier is the tenant subscription level.
	Tier Tier

	// Sites lists the tenant's sites for site-scoped fan-out.
	Sites []Site

	// Site is the site currently being processed, empty outside
	// site-scoped iteration.
	Site string

	emitter *Emitter
	logger  *log.Logger
}

// NewContext creates a context for one operation. If logger is nil, a
// default logger writing to stderr is used.
func NewContext(tenant string, tier Tier, logger *log.Logger) *Context {
	if logger == nil {
		logger = log.New(os.Stderr, "[wchtools] ", log.LstdFlags)
	}
	return &Context{
		Tenant:  tenant,
		Tier:    tier,
		emitter: NewEmitter(),
		logger:  logger,
	}
}

// Emitter returns the operation-scoped event emitter.
func (c *Context) Emitter() *Emitter {
	return c.emitter
}

// Logger returns the operation logger.
func (c *Context) Logger() *log.Logger {
	return c.logger
}

// ForSite returns a shallow copy of the context bound to one site.
// The emitter and logger are shared so per-site batches aggregate into
// the same report.
func (c *Context) ForSite(site Site) *Context {
	cp := *c
	cp.Site = site.ID
	return &cp
}
