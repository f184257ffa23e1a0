package source

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// MemTree is an in-memory Tree. It is the reference implementation
// used by the engine's tests and by hosts that assemble their content
// programmatically.
//
// MemTree is safe for concurrent readers. Mutations (AddRecord, Set,
// Touch) must not race with reads; hosts are expected to mutate
// between build passes, not during them.
type MemTree struct {
	mu         sync.RWMutex
	records    map[string]*MemRecord
	roots      []*MemRecord
	models     map[string]*Model
	flowModels map[string]*FlowModel
	revs       map[string]uint64
}

// NewMemTree creates an empty tree with no models and no records.
func NewMemTree() *MemTree {
	return &MemTree{
		records:    make(map[string]*MemRecord),
		models:     make(map[string]*Model),
		flowModels: make(map[string]*FlowModel),
		revs:       make(map[string]uint64),
	}
}

// AddModel registers a record model. A model with the same id is
// replaced.
func (t *MemTree) AddModel(m *Model) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.models[m.ID] = m
}

// AddFlowModel registers a flow-block model. A model with the same id
// is replaced.
func (t *MemTree) AddFlowModel(m *FlowModel) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.flowModels[m.ID] = m
}

// AddRecord creates a page record beneath the given parent path and
// returns it. An empty parent path creates a root record whose path is
// "/" plus the id ("" or "/" for the conventional single root).
func (t *MemTree) AddRecord(parent, id, modelID string, fields map[string]any) (*MemRecord, error) {
	return t.add(parent, id, modelID, fields, false)
}

// AddAttachment creates an attachment record beneath the given parent
// path and returns it. Attachments carry fields like any record but
// never have children of their own.
func (t *MemTree) AddAttachment(parent, id, modelID string, fields map[string]any) (*MemRecord, error) {
	return t.add(parent, id, modelID, fields, true)
}

func (t *MemTree) add(parent, id, modelID string, fields map[string]any, attachment bool) (*MemRecord, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	var path string
	var par *MemRecord
	if parent == "" {
		if attachment {
			return nil, fmt.Errorf("attachment %q needs a parent record", id)
		}
		path = "/" + strings.Trim(id, "/")
	} else {
		par = t.records[NormalizePath(parent)]
		if par == nil {
			return nil, fmt.Errorf("parent record %q does not exist", parent)
		}
		if id == "" {
			return nil, fmt.Errorf("record under %q needs an id", parent)
		}
		path = JoinPath(par.path, id)
	}
	if _, exists := t.records[path]; exists {
		return nil, fmt.Errorf("record %q already exists", path)
	}

	rec := &MemRecord{
		tree:       t,
		path:       path,
		modelID:    modelID,
		attachment: attachment,
		fields:     make(map[string]any, len(fields)),
	}
	for k, v := range fields {
		rec.fields[k] = v
	}
	if attachment {
		rec.urlPath = path
	} else if path == "/" {
		rec.urlPath = "/"
	} else {
		rec.urlPath = path + "/"
	}

	t.records[path] = rec
	switch {
	case par == nil:
		t.roots = append(t.roots, rec)
	case attachment:
		par.attachments = append(par.attachments, rec)
	default:
		par.children = append(par.children, rec)
	}
	return rec, nil
}

// Get implements Tree. The path is normalized, so "/blog/" and "/blog"
// address the same record.
func (t *MemTree) Get(path string) Record {
	t.mu.RLock()
	defer t.mu.RUnlock()
	rec, ok := t.records[NormalizePath(path)]
	if !ok {
		return nil
	}
	return rec
}

// Roots implements Tree.
func (t *MemTree) Roots() []Record {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]Record, len(t.roots))
	for i, r := range t.roots {
		out[i] = r
	}
	return out
}

// Models implements Tree.
func (t *MemTree) Models() map[string]*Model {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[string]*Model, len(t.models))
	for id, m := range t.models {
		out[id] = m
	}
	return out
}

// FlowModels implements Tree.
func (t *MemTree) FlowModels() map[string]*FlowModel {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[string]*FlowModel, len(t.flowModels))
	for id, m := range t.flowModels {
		out[id] = m
	}
	return out
}

// Touch bumps the revision counter of the record at path. Hosts call
// it after mutating a record so whoever polls Revision can react; the
// engine itself is told about changes through its Invalidate call.
func (t *MemTree) Touch(path string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.revs[NormalizePath(path)]++
}

// Revision returns the current revision counter of the record at path.
// Records start at revision 0.
func (t *MemTree) Revision(path string) uint64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.revs[NormalizePath(path)]
}

// Paths returns every record path in the tree, sorted.
func (t *MemTree) Paths() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]string, 0, len(t.records))
	for p := range t.records {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// MemRecord is the record type of MemTree.
type MemRecord struct {
	tree        *MemTree
	path        string
	urlPath     string
	modelID     string
	srcFiles    []string
	fields      map[string]any
	children    []*MemRecord
	attachments []*MemRecord
	attachment  bool
}

// Path implements Record.
func (r *MemRecord) Path() string { return r.path }

// URLPath implements Record.
func (r *MemRecord) URLPath() string { return r.urlPath }

// ModelID implements Record.
func (r *MemRecord) ModelID() string { return r.modelID }

// Get implements Record.
func (r *MemRecord) Get(field string) any { return r.fields[field] }

// Children implements Record.
func (r *MemRecord) Children() []Record {
	out := make([]Record, len(r.children))
	for i, c := range r.children {
		out[i] = c
	}
	return out
}

// Attachments implements Record.
func (r *MemRecord) Attachments() []Record {
	out := make([]Record, len(r.attachments))
	for i, a := range r.attachments {
		out[i] = a
	}
	return out
}

// SourceFilenames implements Record.
func (r *MemRecord) SourceFilenames() []string {
	out := make([]string, len(r.srcFiles))
	copy(out, r.srcFiles)
	return out
}

// IsAttachment reports whether the record was added as an attachment.
func (r *MemRecord) IsAttachment() bool { return r.attachment }

// Set stores a field value and bumps the record's revision. It returns
// the record so calls can be chained.
func (r *MemRecord) Set(field string, value any) *MemRecord {
	r.fields[field] = value
	r.tree.Touch(r.path)
	return r
}

// SetURLPath overrides the derived URL path.
func (r *MemRecord) SetURLPath(urlPath string) *MemRecord {
	r.urlPath = urlPath
	return r
}

// SetSourceFilenames sets the files backing this record.
func (r *MemRecord) SetSourceFilenames(names ...string) *MemRecord {
	r.srcFiles = append([]string(nil), names...)
	return r
}

// NormalizePath brings a record path into canonical form: leading
// slash, no trailing slash, "/" for the root.
func NormalizePath(path string) string {
	path = strings.TrimSpace(path)
	if path == "" {
		return "/"
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	for strings.Contains(path, "//") {
		path = strings.ReplaceAll(path, "//", "/")
	}
	if len(path) > 1 {
		path = strings.TrimSuffix(path, "/")
	}
	if path == "" {
		return "/"
	}
	return path
}

// JoinPath appends an id to a parent record path.
func JoinPath(parent, id string) string {
	parent = NormalizePath(parent)
	id = strings.Trim(id, "/")
	if parent == "/" {
		return "/" + id
	}
	return parent + "/" + id
}
