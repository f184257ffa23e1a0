package groupby

import (
	"fmt"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/zclconf/go-cty/cty"

	"github.com/gophersatwork/groupby/source"
)

// VirtualPrefix marks group virtual paths inside the host tree:
// "<root path>@groupby/<attribute>/<key>[/<page>]".
const VirtualPrefix = "@groupby"

// Child is one record belonging to a group, with the payloads its
// occurrences yielded: by default the canonical key objects, or the
// explicit extras passed to EmitExtra.
type Child struct {
	Record source.Record
	Extras []any
}

// GroupBySource is the materialized cluster of records sharing one
// resolved key. Instances are created during a watcher build and do
// not change once the build completes; pagination pages are derived
// GroupBySource values sharing the parent's children.
type GroupBySource struct {
	w       *Watcher
	rootRec source.Record

	key     string
	keyObj  any
	slug    string // "" when the group is not addressable
	urlPath string
	vpath   string

	children []Child

	pag     *Pagination
	pageNum int            // 0 without pagination; the group itself is page 1
	parent  *GroupBySource // set on derived pages
}

// Attribute returns the watched attribute this group belongs to.
func (g *GroupBySource) Attribute() string { return g.w.config.Attribute }

// RootPath returns the root path of the owning watcher.
func (g *GroupBySource) RootPath() string { return g.w.config.Root }

// RootRecord returns the record the watcher's scan started from.
func (g *GroupBySource) RootRecord() source.Record { return g.rootRec }

// Key returns the final slug-safe group key. It is never empty.
func (g *GroupBySource) Key() string { return g.key }

// KeyObj returns the canonical raw key object: the first yield for
// this group, after the key_obj_fn transform but before the key map.
func (g *GroupBySource) KeyObj() any { return g.keyObj }

// Slug returns the computed slug path below the watcher root, or ""
// when the group is not addressable.
func (g *GroupBySource) Slug() string { return g.slug }

// URLPath returns the group's URL, or "" when it is not addressable.
func (g *GroupBySource) URLPath() string { return g.urlPath }

// VirtualPath returns the group's virtual path in the host tree.
func (g *GroupBySource) VirtualPath() string { return g.vpath }

// Template returns the template name configured for rendering this
// group.
func (g *GroupBySource) Template() string { return g.w.config.Template }

// PageNum returns 0 on unpaginated groups, 1 on the paginated group
// itself and the page number on derived pages.
func (g *GroupBySource) PageNum() int { return g.pageNum }

// Children returns the group's records in their final order: first
// seen during the scan, re-ordered by the config's order_by.
func (g *GroupBySource) Children() []Child {
	return append([]Child(nil), g.children...)
}

// FirstChild returns the first child, if any.
func (g *GroupBySource) FirstChild() (Child, bool) {
	if len(g.children) == 0 {
		return Child{}, false
	}
	return g.children[0], true
}

// FirstExtra returns the first payload of the first child, if any.
func (g *GroupBySource) FirstExtra() (any, bool) {
	if len(g.children) == 0 || len(g.children[0].Extras) == 0 {
		return nil, false
	}
	return g.children[0].Extras[0], true
}

// Config returns a read-only projection of the owning watcher's
// configuration.
func (g *GroupBySource) Config() ConfigView { return g.w.config.view() }

// Field evaluates a declared config field. Expressions run on every
// access with "this" bound to the group, so they may reference
// build-time context; results are never cached. Undeclared names
// return ErrNoField.
func (g *GroupBySource) Field(name string) (any, error) {
	v, ok := g.w.config.fieldExprs[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q on group %q", ErrNoField, name, g.key)
	}
	x, ok := v.(*expr)
	if !ok {
		return v, nil
	}
	out, err := x.eval(g.exprVars())
	if err != nil {
		return nil, fmt.Errorf("field %q of group %q: %w", name, g.key, err)
	}
	return out, nil
}

// FieldNames returns the declared field names, sorted.
func (g *GroupBySource) FieldNames() []string {
	return append([]string(nil), g.w.config.fieldNames...)
}

// SourceFilenames returns what this group was built from: the
// watcher's declared dependencies followed by every child's source
// files. Hosts record these against rendered group artifacts.
func (g *GroupBySource) SourceFilenames() []string {
	out := append([]string(nil), g.w.config.Dependencies...)
	for _, ch := range g.children {
		out = append(out, ch.Record.SourceFilenames()...)
	}
	return out
}

// exprVars builds the evaluation scope for this group's expressions.
func (g *GroupBySource) exprVars() map[string]cty.Value {
	cc := g.w.config

	children := make([]cty.Value, len(g.children))
	for i, ch := range g.children {
		extras := make([]cty.Value, len(ch.Extras))
		for j, ex := range ch.Extras {
			extras[j] = goToCty(ex)
		}
		children[i] = cty.ObjectVal(map[string]cty.Value{
			"path":     cty.StringVal(ch.Record.Path()),
			"url_path": cty.StringVal(ch.Record.URLPath()),
			"id":       cty.StringVal(path.Base(ch.Record.Path())),
			"extras":   tupleVal(extras),
		})
	}

	this := map[string]cty.Value{
		"key":       cty.StringVal(g.key),
		"key_obj":   goToCty(g.keyObj),
		"attribute": cty.StringVal(cc.Attribute),
		"root":      cty.StringVal(cc.Root),
		"slug":      nullableString(g.slug),
		"url_path":  nullableString(g.urlPath),
		"template":  cty.StringVal(cc.Template),
		"total":     cty.NumberIntVal(int64(len(g.children))),
		"page":      cty.NumberIntVal(int64(g.pageNum)),
		"children":  tupleVal(children),
	}

	return map[string]cty.Value{
		"this":   cty.ObjectVal(this),
		"key":    cty.StringVal(g.key),
		"record": recordToCty(g.w.engine.tree, g.rootRec),
		"config": cty.ObjectVal(map[string]cty.Value{
			"attribute": cty.StringVal(cc.Attribute),
			"root":      cty.StringVal(cc.Root),
			"template":  cty.StringVal(cc.Template),
			"split":     cty.StringVal(cc.Split),
		}),
	}
}

func nullableString(s string) cty.Value {
	if s == "" {
		return cty.NullVal(cty.String)
	}
	return cty.StringVal(s)
}

// contribution records that a record contributed an occurrence to a
// group, and where in the record it was found. The group query uses
// this as a reverse index.
type contribution struct {
	key string
	occ FieldKeyPath
}

// aggregate accumulates groups for one watcher build.
type aggregate struct {
	w        *Watcher
	order    []string // first-seen key order
	groups   map[string]*groupAcc
	contribs map[string][]contribution // record path -> contributions
}

type groupAcc struct {
	gs       *GroupBySource
	childIdx map[string]int // record path -> index into gs.children
}

func newAggregate(w *Watcher) *aggregate {
	return &aggregate{
		w:        w,
		groups:   make(map[string]*groupAcc),
		contribs: make(map[string][]contribution),
	}
}

// add merges one resolved yield into the group for key, creating the
// group on first sight, and returns the in-progress group.
func (a *aggregate) add(key string, keyObj any, args CallbackArgs, payload any) *GroupBySource {
	acc, ok := a.groups[key]
	if !ok {
		acc = &groupAcc{
			gs:       &GroupBySource{w: a.w, key: key, keyObj: keyObj},
			childIdx: make(map[string]int),
		}
		a.groups[key] = acc
		a.order = append(a.order, key)
	}

	rp := args.Record.Path()
	idx, ok := acc.childIdx[rp]
	if !ok {
		idx = len(acc.gs.children)
		acc.gs.children = append(acc.gs.children, Child{Record: args.Record})
		acc.childIdx[rp] = idx
	}
	acc.gs.children[idx].Extras = append(acc.gs.children[idx].Extras, payload)

	a.contribs[rp] = append(a.contribs[rp], contribution{key: key, occ: args.Key})
	return acc.gs
}

// finalize turns the accumulated state into the finished group set:
// children ordered, slugs and URLs assigned, equal slugs merged into
// one group, pagination split.
func (a *aggregate) finalize(root source.Record) (map[string]*GroupBySource, []string, map[string]string, error) {
	cc := a.w.config

	for _, key := range a.order {
		gs := a.groups[key].gs
		gs.rootRec = root
		sortChildren(gs.children, cc.OrderBy)
	}

	for _, key := range a.order {
		gs := a.groups[key].gs
		slug, err := a.computeSlug(gs)
		if err != nil {
			return nil, nil, nil, err
		}
		gs.slug = normalizeSlug(slug)
		gs.vpath = virtualPath(cc.Root, cc.Attribute, key)
		if gs.slug != "" {
			gs.urlPath = joinURL(root.URLPath(), gs.slug)
		}
	}

	// Reuse-by-slug: a later group whose slug equals an earlier one's
	// is folded into it, so one slug never maps to two groups. The
	// merge order is the first-seen key order, making it
	// deterministic.
	bySlug := make(map[string]string)
	aliases := make(map[string]string)
	kept := a.order[:0]
	for _, key := range a.order {
		gs := a.groups[key].gs
		if gs.slug == "" {
			kept = append(kept, key)
			continue
		}
		first, collision := bySlug[gs.slug]
		if !collision {
			bySlug[gs.slug] = key
			kept = append(kept, key)
			continue
		}
		a.mergeInto(first, key)
		aliases[key] = first
		a.w.engine.log.Warn("group slug collision, reusing group",
			"attribute", cc.Attribute, "slug", gs.slug, "key", key, "kept", first)
	}

	out := make(map[string]*GroupBySource, len(kept))
	for _, key := range kept {
		gs := a.groups[key].gs
		if cc.Pagination.Enabled && gs.slug != "" {
			pag, err := newPagination(gs)
			if err != nil {
				return nil, nil, nil, err
			}
			gs.pag = pag
		}
		out[key] = gs
	}
	order := append([]string(nil), kept...)
	return out, order, aliases, nil
}

// mergeInto folds the group of srcKey into the group of dstKey:
// children are appended (payloads extended for records both groups
// share) and re-ordered.
func (a *aggregate) mergeInto(dstKey, srcKey string) {
	dst := a.groups[dstKey]
	src := a.groups[srcKey]
	for _, ch := range src.gs.children {
		rp := ch.Record.Path()
		idx, ok := dst.childIdx[rp]
		if !ok {
			idx = len(dst.gs.children)
			dst.gs.children = append(dst.gs.children, Child{Record: ch.Record})
			dst.childIdx[rp] = idx
		}
		dst.gs.children[idx].Extras = append(dst.gs.children[idx].Extras, ch.Extras...)
	}
	sortChildren(dst.gs.children, a.w.config.OrderBy)
}

// computeSlug renders the slug template for a group: "{key}"
// substitution when the template carries the token, expression
// evaluation otherwise.
func (a *aggregate) computeSlug(gs *GroupBySource) (string, error) {
	cc := a.w.config
	switch {
	case cc.slug == "":
		return "", nil
	case cc.slugKeyed:
		return strings.ReplaceAll(cc.slug, "{key}", gs.key), nil
	default:
		slug, err := cc.slugExpr.evalString(gs.exprVars())
		if err != nil {
			return "", fmt.Errorf("slug of group %q: %w", gs.key, err)
		}
		return slug, nil
	}
}

// normalizeSlug folds a trailing "/index.html" into the directory
// form, so both spellings produce the same URL.
func normalizeSlug(slug string) string {
	if strings.HasSuffix(slug, "/index.html") {
		return strings.TrimSuffix(slug, "index.html")
	}
	return slug
}

// virtualPath builds "<root path>@groupby/<attribute>/<key>".
func virtualPath(rootPath, attribute, key string) string {
	return rootPath + VirtualPrefix + "/" + attribute + "/" + key
}

// joinURL joins URL pieces with single slashes, keeping the trailing
// slash of the last non-empty piece and forcing a leading slash.
func joinURL(parts ...string) string {
	var segs []string
	trailing := false
	for _, p := range parts {
		if p == "" {
			continue
		}
		trailing = strings.HasSuffix(p, "/")
		for _, s := range strings.Split(p, "/") {
			if s != "" {
				segs = append(segs, s)
			}
		}
	}
	out := "/" + strings.Join(segs, "/")
	if trailing && out != "/" {
		out += "/"
	}
	return out
}

// sortChildren applies the order_by spec as a stable sort. Unset or
// incomparable sort values compare equal, preserving the prior
// relative order, so the first build keeps insertion order.
func sortChildren(children []Child, keys []SortKey) {
	if len(keys) == 0 {
		return
	}
	sort.SliceStable(children, func(i, j int) bool {
		for _, key := range keys {
			c := compareValues(childSortValue(children[i], key.Field), childSortValue(children[j], key.Field))
			if key.Desc {
				c = -c
			}
			if c != 0 {
				return c < 0
			}
		}
		return false
	})
}

// childSortValue resolves one sort field against a child. A few
// underscore names address record identity rather than fields.
func childSortValue(ch Child, field string) any {
	switch field {
	case "_path":
		return ch.Record.Path()
	case "_id":
		return path.Base(ch.Record.Path())
	case "_url":
		return ch.Record.URLPath()
	case "_model":
		return ch.Record.ModelID()
	}
	return ch.Record.Get(field)
}

// compareValues orders two field values of the same kind. Values of
// different or unknown kinds compare equal so stable sorting leaves
// their order alone.
func compareValues(a, b any) int {
	if a == nil || b == nil {
		return 0
	}

	if ab, ok := a.(bool); ok {
		if bb, ok := b.(bool); ok {
			switch {
			case ab == bb:
				return 0
			case bb:
				return -1
			}
			return 1
		}
		return 0
	}

	if af, ok := toFloat(a); ok {
		if bf, ok := toFloat(b); ok {
			switch {
			case af < bf:
				return -1
			case af > bf:
				return 1
			}
			return 0
		}
		return 0
	}

	if at, ok := a.(time.Time); ok {
		if bt, ok := b.(time.Time); ok {
			switch {
			case at.Before(bt):
				return -1
			case at.After(bt):
				return 1
			}
			return 0
		}
		return 0
	}

	if as, ok := stringish(a); ok {
		if bs, ok := stringish(b); ok {
			return strings.Compare(as, bs)
		}
	}
	return 0
}

func toFloat(v any) (float64, bool) {
	switch val := v.(type) {
	case int:
		return float64(val), true
	case int8:
		return float64(val), true
	case int16:
		return float64(val), true
	case int32:
		return float64(val), true
	case int64:
		return float64(val), true
	case uint:
		return float64(val), true
	case uint8:
		return float64(val), true
	case uint16:
		return float64(val), true
	case uint32:
		return float64(val), true
	case uint64:
		return float64(val), true
	case float32:
		return float64(val), true
	case float64:
		return val, true
	}
	return 0, false
}

func stringish(v any) (string, bool) {
	switch val := v.(type) {
	case string:
		return val, true
	case []byte:
		return string(val), true
	case fmt.Stringer:
		return val.String(), true
	}
	return "", false
}
