// Package artifact defines the content artifact model shared by every
// synchronization component: the transfer unit (Item), the per-operation
// Context, the lifecycle event emitter, and the uniform Helper contract
// that each artifact type exposes to the orchestrator.
//
// The orchestrator never talks to a specific REST endpoint or file format;
// it only sees Helpers. Concrete helpers (assets, types, layouts, sites,
// pages, ...) are registered by name and looked up through the Registry.
package artifact

// Status values used for selection filtering on site-scoped types.
const (
	StatusReady = "ready"
	StatusDraft = "draft"
)

// Reference points at a sub-artifact of another type that an item depends
// on (thumbnails, renditions, referenced content). Pull-by-type-name
// follows references recursively through the Registry.
type Reference struct {
	// TypeName is the registered helper name for the referenced artifact.
	TypeName string `json:"typeName"`

	// ID is the remote identifier of the referenced artifact.
	ID string `json:"id"`
}

// Item is the unit of transfer.
//
// Path uniquely identifies an item within one site/tenant scope for any
// given artifact type. ID is assigned by the remote service and stays
// empty until the first successful push.
type Item struct {
	// Name is the display string; not guaranteed unique.
	Name string `json:"name"`

	// ID is the remote-assigned identifier, empty for not-yet-created items.
	ID string `json:"id,omitempty"`

	// Path is the local/remote path used as the primary identity key for
	// filesystem-backed types.
	Path string `json:"path"`

	// Status is the publication status (ready or draft).
	Status string `json:"status,omitempty"`

	// SiteStatus is the status of the owning site for site-scoped types.
	SiteStatus string `json:"siteStatus,omitempty"`

	// Modified is the change marker compared against the hashes store:
	// a server revision/timestamp for remote items, a content hash for
	// local items.
	Modified string `json:"modified,omitempty"`

	// MD5 is the content hash of the item's binary resource, when the
	// type carries one. Used for upload dedup.
	MD5 string `json:"md5,omitempty"`

	// References lists sub-artifacts this item depends on.
	References []Reference `json:"references,omitempty"`

	// Payload carries the type-specific document body.
	Payload map[string]any `json:"payload,omitempty"`
}

// Key returns the identity key used for matching and deduplication:
// the remote ID when assigned, the path otherwise.
func (it Item) Key() string {
	if it.ID != "" {
		return it.ID
	}
	return it.Path
}

// EffectiveStatus returns the status used for ready/draft filtering,
// preferring the site-scoped status when present.
func (it Item) EffectiveStatus() string {
	if it.SiteStatus != "" {
		return it.SiteStatus
	}
	if it.Status != "" {
		return it.Status
	}
	return StatusReady
}

// Site describes one site of the tenant. Site-scoped artifact types
// (e.g. pages) repeat the whole transfer cycle once per applicable site.
type Site struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Status string `json:"status"`
}
