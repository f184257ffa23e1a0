package groupby

import (
	"fmt"
	"path"
	"strconv"
	"strings"
)

// Pagination splits a group's children into fixed-size pages. The
// group itself serves as page 1 at its base slug; pages 2..NumPages
// are derived groups with suffixed slugs and URLs.
type Pagination struct {
	PerPage  int
	Total    int
	NumPages int

	parent *GroupBySource
	pages  []*GroupBySource // pages 2..NumPages
}

// newPagination derives the page set of gs. The item count is fixed
// here, so a configured items expression is evaluated once up front.
func newPagination(gs *GroupBySource) (*Pagination, error) {
	cc := gs.w.config
	gs.pageNum = 1

	base, err := gs.pagedBase()
	if err != nil {
		return nil, err
	}

	per := cc.Pagination.PerPage
	total := len(base)
	numPages := (total + per - 1) / per
	if numPages < 1 {
		numPages = 1
	}

	pag := &Pagination{
		PerPage:  per,
		Total:    total,
		NumPages: numPages,
		parent:   gs,
	}
	for n := 2; n <= numPages; n++ {
		slug := pageSuffixed(gs.slug, cc.Pagination.URLSuffix, n)
		pag.pages = append(pag.pages, &GroupBySource{
			w:        gs.w,
			rootRec:  gs.rootRec,
			key:      gs.key,
			keyObj:   gs.keyObj,
			slug:     slug,
			urlPath:  joinURL(gs.rootRec.URLPath(), slug),
			vpath:    gs.vpath + "/" + strconv.Itoa(n),
			children: gs.children,
			pag:      pag,
			pageNum:  n,
			parent:   gs,
		})
	}
	return pag, nil
}

// Page returns page n. Page 1 is the group itself.
func (p *Pagination) Page(n int) (*GroupBySource, error) {
	switch {
	case n == 1:
		return p.parent, nil
	case n >= 2 && n <= p.NumPages:
		return p.pages[n-2], nil
	}
	return nil, fmt.Errorf("%w: %d of %d", ErrBadPage, n, p.NumPages)
}

// Pages returns every page in order, starting with the group itself.
func (p *Pagination) Pages() []*GroupBySource {
	out := make([]*GroupBySource, 0, 1+len(p.pages))
	out = append(out, p.parent)
	return append(out, p.pages...)
}

// pageSuffixed appends the page marker to a slug or URL path.
// Directory-style paths gain a "<suffix>/<n>/" segment; file-style
// paths get the marker spliced in before the extension.
func pageSuffixed(p, suffix string, n int) string {
	num := strconv.Itoa(n)
	if strings.HasSuffix(p, "/index.html") {
		p = strings.TrimSuffix(p, "index.html")
	}
	if strings.HasSuffix(p, "/") {
		return p + suffix + "/" + num + "/"
	}
	if ext := path.Ext(p); ext != "" {
		return strings.TrimSuffix(p, ext) + suffix + num + ext
	}
	return p + "/" + suffix + "/" + num + "/"
}

// baseGroup returns the page-1 group a derived page belongs to.
func (g *GroupBySource) baseGroup() *GroupBySource {
	if g.parent != nil {
		return g.parent
	}
	return g
}

// Pagination returns the group's page set, or nil when pagination is
// not enabled for its watcher or the group is not addressable.
func (g *GroupBySource) Pagination() *Pagination { return g.pag }

// Page is shorthand for Pagination().Page(n).
func (g *GroupBySource) Page(n int) (*GroupBySource, error) {
	if g.pag == nil {
		if n == 1 {
			return g.baseGroup(), nil
		}
		return nil, fmt.Errorf("%w: %d without pagination", ErrBadPage, n)
	}
	return g.pag.Page(n)
}

// pagedBase returns the full item list pagination slices up: all
// children, or the subset selected by the configured items
// expression, in expression order.
func (g *GroupBySource) pagedBase() ([]Child, error) {
	base := g.baseGroup()
	x := g.w.config.itemsExpr
	if x == nil {
		return base.children, nil
	}

	out, err := x.eval(base.exprVars())
	if err != nil {
		return nil, fmt.Errorf("pagination items of group %q: %w", base.key, err)
	}
	list, ok := out.([]any)
	if !ok {
		return nil, fmt.Errorf("pagination items of group %q: expected a list, got %T", base.key, out)
	}

	byPath := make(map[string]int, len(base.children))
	for i, ch := range base.children {
		byPath[ch.Record.Path()] = i
	}
	var items []Child
	for _, el := range list {
		p, ok := itemPath(el)
		if !ok {
			continue
		}
		if i, ok := byPath[p]; ok {
			items = append(items, base.children[i])
		}
	}
	return items, nil
}

// itemPath extracts a record path from one items-expression element.
func itemPath(el any) (string, bool) {
	switch v := el.(type) {
	case string:
		return v, true
	case map[string]any:
		if p, ok := v["path"].(string); ok {
			return p, true
		}
	}
	return "", false
}

// Items returns the children visible on this page: the whole item
// list on unpaginated groups, one window of it on pages.
func (g *GroupBySource) Items() ([]Child, error) {
	base, err := g.pagedBase()
	if err != nil {
		return nil, err
	}
	if g.pag == nil {
		return append([]Child(nil), base...), nil
	}
	page := g.pageNum
	if page < 1 {
		page = 1
	}
	start := (page - 1) * g.pag.PerPage
	if start >= len(base) {
		return nil, nil
	}
	end := start + g.pag.PerPage
	if end > len(base) {
		end = len(base)
	}
	return append([]Child(nil), base[start:end]...), nil
}
