// Package resthelper provides the generic Helper implementation backing
// the registered artifact types: the remote side is a JSON REST endpoint,
// the local side a directory of JSON documents. A TypeDescriptor
// parameterizes everything type-specific, so one implementation serves
// assets, types, layouts, sites, pages and the rest.
//
// Every remote call runs inside the retry executor; responses outside
// 2xx become *retry.StatusError values carrying the service error code,
// so the executor's transient/fatal classification applies uniformly.
package resthelper

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"strconv"

	"github.com/acoustic-content-samples/wchtools-cli-sub005/internal/artifact"
	"github.com/acoustic-content-samples/wchtools-cli-sub005/internal/compare"
	"github.com/acoustic-content-samples/wchtools-cli-sub005/internal/hashes"
	"github.com/acoustic-content-samples/wchtools-cli-sub005/internal/retry"
)

// defaultPageSize is used when the enumeration options carry no limit.
const defaultPageSize = 100

// TypeDescriptor parameterizes one artifact type.
type TypeDescriptor struct {
	// Name is the registered type name and the local directory name
	// (e.g. "types").
	Name string

	// ArtifactName is the singular display noun (e.g. "type").
	ArtifactName string

	// Extension is the local file extension; ".json" when empty.
	Extension string

	// Endpoint is the service path for this type (e.g.
	// "/authoring/v1/types").
	Endpoint string

	// PathBased enables the --path prefix filter for this type.
	PathBased bool

	// SiteScoped makes operations fan out over the tenant's sites.
	SiteScoped bool
}

// Helper is the generic REST+filesystem artifact helper.
type Helper struct {
	desc     TypeDescriptor
	baseURL  string
	dir      string
	client   *http.Client
	executor *retry.Executor
	logger   *log.Logger
}

// New creates a helper for one artifact type. baseURL is the service
// root, dir the local working directory root. If client is nil,
// http.DefaultClient is used; if logger is nil, a default logger writing
// to stderr is used.
func New(desc TypeDescriptor, baseURL, dir string, client *http.Client,
	executor *retry.Executor, logger *log.Logger) *Helper {
	if desc.Extension == "" {
		desc.Extension = ".json"
	}
	if client == nil {
		client = http.DefaultClient
	}
	if logger == nil {
		logger = log.New(os.Stderr, "[resthelper] ", log.LstdFlags)
	}
	return &Helper{
		desc:     desc,
		baseURL:  baseURL,
		dir:      dir,
		client:   client,
		executor: executor,
		logger:   logger,
	}
}

func (h *Helper) Name() string         { return h.desc.Name }
func (h *Helper) ArtifactName() string { return h.desc.ArtifactName }
func (h *Helper) Extension() string    { return h.desc.Extension }
func (h *Helper) IsPathBased() bool    { return h.desc.PathBased }
func (h *Helper) IsSiteScoped() bool   { return h.desc.SiteScoped }

// GetEventEmitter returns the operation emitter.
func (h *Helper) GetEventEmitter(actx *artifact.Context) *artifact.Emitter {
	return actx.Emitter()
}

// listResponse is the service's paginated enumeration shape.
type listResponse struct {
	Offset int              `json:"offset"`
	Limit  int              `json:"limit"`
	Items  []map[string]any `json:"items"`
}

// ListRemoteItems enumerates every remote item of the type, following
// the offset/limit pagination until a short page.
func (h *Helper) ListRemoteItems(ctx context.Context, actx *artifact.Context, opts artifact.ListOptions) ([]artifact.Item, error) {
	return h.listRemote(ctx, actx, opts, nil)
}

// ListRemoteModifiedItems enumerates remote items through the service's
// by-modified view, newest first.
func (h *Helper) ListRemoteModifiedItems(ctx context.Context, actx *artifact.Context, opts artifact.ListOptions) ([]artifact.Item, error) {
	return h.listRemote(ctx, actx, opts, url.Values{"filter": {"modified"}})
}

func (h *Helper) listRemote(ctx context.Context, actx *artifact.Context, opts artifact.ListOptions, extra url.Values) ([]artifact.Item, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = defaultPageSize
	}
	offset := opts.Offset

	var items []artifact.Item
	for {
		query := url.Values{}
		for key, vals := range extra {
			query[key] = vals
		}
		query.Set("offset", strconv.Itoa(offset))
		query.Set("limit", strconv.Itoa(limit))
		if opts.Path != "" && h.desc.PathBased {
			query.Set("path", opts.Path)
		}
		h.scopeSite(actx, query)

		var page listResponse
		if err := h.getJSON(ctx, h.desc.Endpoint, query, &page); err != nil {
			return nil, fmt.Errorf("failed to list %s: %w", h.desc.Name, err)
		}

		for _, doc := range page.Items {
			items = append(items, itemFromPayload(doc))
		}
		if len(page.Items) < limit {
			return items, nil
		}
		offset += limit
	}
}

// SearchRemote queries remote items by name or type name. References are
// populated from the search documents so pull-by-type can follow them.
func (h *Helper) SearchRemote(ctx context.Context, actx *artifact.Context, query string) ([]artifact.Item, error) {
	values := url.Values{"q": {query}}
	h.scopeSite(actx, values)

	var page listResponse
	if err := h.getJSON(ctx, h.desc.Endpoint+"/search", values, &page); err != nil {
		return nil, fmt.Errorf("failed to search %s: %w", h.desc.Name, err)
	}

	items := make([]artifact.Item, 0, len(page.Items))
	for _, doc := range page.Items {
		items = append(items, itemFromPayload(doc))
	}
	return items, nil
}

// PullItem fetches one remote item and writes its local representation.
func (h *Helper) PullItem(ctx context.Context, actx *artifact.Context, item artifact.Item, _ artifact.PullOptions) (artifact.Item, error) {
	query := url.Values{}
	h.scopeSite(actx, query)

	var endpoint string
	if item.ID != "" {
		endpoint = h.desc.Endpoint + "/" + url.PathEscape(item.ID)
	} else {
		endpoint = h.desc.Endpoint + "/by-path"
		query.Set("path", item.Path)
	}

	var doc map[string]any
	if err := h.getJSON(ctx, endpoint, query, &doc); err != nil {
		return artifact.Item{}, fmt.Errorf("failed to fetch %s %s: %w", h.desc.ArtifactName, item.Key(), err)
	}

	pulled := itemFromPayload(doc)
	if pulled.Path == "" {
		pulled.Path = item.Path
	}
	if err := h.writeLocal(pulled); err != nil {
		return artifact.Item{}, err
	}
	return pulled, nil
}

// PushItem sends one local item to the service. Items with an id are
// updated in place unless the remote content hash already matches; a 404
// on update falls back to create so items deleted remotely are restored.
// CreateOnly disables the update path entirely, and a 409 conflict is a
// fatal single-item error in every mode.
func (h *Helper) PushItem(ctx context.Context, actx *artifact.Context, item artifact.Item, opts artifact.PushOptions) (artifact.Item, error) {
	local, err := h.readLocal(item)
	if err != nil {
		return artifact.Item{}, err
	}

	query := url.Values{}
	h.scopeSite(actx, query)

	if local.ID != "" && !opts.CreateOnly {
		skip, err := h.remoteHashMatches(ctx, local, query)
		if err != nil {
			return artifact.Item{}, err
		}
		if skip {
			h.logger.Printf("skipping upload of %s %s: remote content is identical", h.desc.ArtifactName, local.Path)
			return local, nil
		}

		updated, err := h.update(ctx, local, query)
		if err == nil {
			return updated, nil
		}
		if !isNotFound(err) {
			return artifact.Item{}, err
		}
		// The remote item is gone; recreate it.
		h.logger.Printf("%s %s not found on update, creating", h.desc.ArtifactName, local.ID)
	}

	return h.create(ctx, local, query)
}

// remoteHashMatches checks the remote content hash before an update so
// identical content is never re-uploaded. A missing or failed HEAD is
// treated as a mismatch and the upload proceeds.
func (h *Helper) remoteHashMatches(ctx context.Context, item artifact.Item, query url.Values) (bool, error) {
	if item.MD5 == "" {
		return false, nil
	}

	endpoint := h.desc.Endpoint + "/" + url.PathEscape(item.ID)
	var remoteMD5 string
	err := h.executor.Do(ctx, "HEAD "+endpoint, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodHead, h.requestURL(endpoint, query), nil)
		if err != nil {
			return err
		}
		resp, err := h.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusNotFound {
			remoteMD5 = ""
			return nil
		}
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return statusError(resp)
		}
		remoteMD5 = resp.Header.Get("Content-MD5")
		return nil
	})
	if err != nil {
		h.logger.Printf("WARNING: failed to check remote hash for %s: %v", item.Path, err)
		return false, nil
	}
	// An absent Content-MD5 means the remote hash is unknown, never a
	// match.
	return remoteMD5 != "" && hashes.CompareMD5Hashes(item.MD5, remoteMD5), nil
}

func (h *Helper) update(ctx context.Context, item artifact.Item, query url.Values) (artifact.Item, error) {
	endpoint := h.desc.Endpoint + "/" + url.PathEscape(item.ID)
	doc, err := h.sendJSON(ctx, http.MethodPut, endpoint, query, item.Payload)
	if err != nil {
		return artifact.Item{}, fmt.Errorf("failed to update %s %s: %w", h.desc.ArtifactName, item.ID, err)
	}
	return h.mergePushed(item, doc), nil
}

func (h *Helper) create(ctx context.Context, item artifact.Item, query url.Values) (artifact.Item, error) {
	doc, err := h.sendJSON(ctx, http.MethodPost, h.desc.Endpoint, query, item.Payload)
	if err != nil {
		return artifact.Item{}, fmt.Errorf("failed to create %s %s: %w", h.desc.ArtifactName, item.Path, err)
	}
	pushed := h.mergePushed(item, doc)
	if pushed.ID != "" && pushed.ID != stringField(item.Payload, "id") {
		return h.persistAssignedID(item, pushed.ID)
	}
	return pushed, nil
}

// persistAssignedID folds a service-assigned id back into the local
// document so the next push takes the update path instead of creating a
// duplicate. The rewrite changes the file bytes, so the markers are
// recomputed from the rewritten document.
func (h *Helper) persistAssignedID(item artifact.Item, id string) (artifact.Item, error) {
	item.Payload["id"] = id
	item.ID = id
	if err := h.writeLocal(item); err != nil {
		return artifact.Item{}, err
	}
	return h.loadLocal(item.Path)
}

// mergePushed folds the service response into the local item, picking up
// the assigned id. The modification marker and content hash stay those
// of the local document: the change store tracks what was sent, not the
// revision the service assigned, so an unchanged item is skipped on the
// next modified-only run.
func (h *Helper) mergePushed(item artifact.Item, doc map[string]any) artifact.Item {
	pushed := itemFromPayload(doc)
	pushed.Path = item.Path
	if pushed.ID == "" {
		pushed.ID = item.ID
	}
	if pushed.Name == "" {
		pushed.Name = item.Name
	}
	pushed.Modified = item.Modified
	pushed.MD5 = item.MD5
	return pushed
}

// CompareItem structurally diffs the two payloads.
func (h *Helper) CompareItem(_ context.Context, _ *artifact.Context, source, target artifact.Item) ([]string, error) {
	return compare.DiffNodes(source.Payload, target.Payload), nil
}

// scopeSite adds the site id to remote calls during site fan-out.
func (h *Helper) scopeSite(actx *artifact.Context, query url.Values) {
	if h.desc.SiteScoped && actx.Site != "" {
		query.Set("siteId", actx.Site)
	}
}

func (h *Helper) requestURL(endpoint string, query url.Values) string {
	u := h.baseURL + endpoint
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return u
}

// getJSON performs a GET inside the retry executor and decodes the
// response into out.
func (h *Helper) getJSON(ctx context.Context, endpoint string, query url.Values, out any) error {
	return h.executor.Do(ctx, "GET "+endpoint, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.requestURL(endpoint, query), nil)
		if err != nil {
			return err
		}
		req.Header.Set("Accept", "application/json")

		resp, err := h.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return statusError(resp)
		}
		return json.NewDecoder(resp.Body).Decode(out)
	})
}

// sendJSON performs a PUT or POST with a JSON body inside the retry
// executor and returns the decoded response document.
func (h *Helper) sendJSON(ctx context.Context, method, endpoint string, query url.Values, payload map[string]any) (map[string]any, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s payload: %w", h.desc.ArtifactName, err)
	}

	var doc map[string]any
	err = h.executor.Do(ctx, method+" "+endpoint, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, method, h.requestURL(endpoint, query), bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")

		resp, err := h.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return statusError(resp)
		}
		return json.NewDecoder(resp.Body).Decode(&doc)
	})
	return doc, err
}

// errorBody is the service's JSON error envelope. Some endpoints return
// a flat {code, message}, others wrap it in an errors array.
type errorBody struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Errors  []struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"errors"`
}

// statusError builds the classified error for a non-2xx response,
// extracting the service error code from the body when present.
func statusError(resp *http.Response) *retry.StatusError {
	st := &retry.StatusError{StatusCode: resp.StatusCode}

	data, err := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err != nil {
		return st
	}
	var body errorBody
	if err := json.Unmarshal(data, &body); err != nil {
		return st
	}
	st.Code = body.Code
	st.Message = body.Message
	if st.Code == 0 && len(body.Errors) > 0 {
		st.Code = body.Errors[0].Code
		st.Message = body.Errors[0].Message
	}
	return st
}

// isNotFound reports whether err is an HTTP 404 from the service.
func isNotFound(err error) bool {
	var st *retry.StatusError
	return errors.As(err, &st) && st.StatusCode == http.StatusNotFound
}

// itemFromPayload maps a service document onto the transfer item,
// keeping the full document as the payload.
func itemFromPayload(doc map[string]any) artifact.Item {
	item := artifact.Item{
		Name:       stringField(doc, "name"),
		ID:         stringField(doc, "id"),
		Path:       stringField(doc, "path"),
		Status:     stringField(doc, "status"),
		SiteStatus: stringField(doc, "siteStatus"),
		Modified:   stringField(doc, "rev"),
		MD5:        stringField(doc, "digest"),
		Payload:    doc,
	}
	if item.Modified == "" {
		item.Modified = stringField(doc, "lastModified")
	}

	if refs, ok := doc["references"].([]any); ok {
		for _, r := range refs {
			ref, ok := r.(map[string]any)
			if !ok {
				continue
			}
			item.References = append(item.References, artifact.Reference{
				TypeName: stringField(ref, "typeName"),
				ID:       stringField(ref, "id"),
			})
		}
	}
	return item
}

func stringField(doc map[string]any, key string) string {
	s, _ := doc[key].(string)
	return s
}
