package groupby

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/afero"
	"gopkg.in/ini.v1"

	"github.com/gophersatwork/groupby/source"
)

// Defaults for optional config values.
const (
	defaultNoneKey    = "none"
	defaultPerPage    = 20
	defaultPageSuffix = "page"
)

// Config holds the per-attribute grouping settings. The zero value is
// usable: every field has a default described below.
//
// Slug is a template for the group's URL path below the root record.
// A literal "{key}" token is substituted with the final key; any other
// content is evaluated as an expression with "this" bound to the
// group. An empty Slug means the default "<attribute>/{key}/"; set
// NoSlug to make groups unaddressable instead (config files express
// that as an explicitly empty slug value).
type Config struct {
	Attribute string // optional; must match the registration attribute when set
	Root      string // subtree to scan, default "/"

	Slug     string // slug template, default "<attribute>/{key}/"
	NoSlug   bool   // suppress URL addressability
	Template string // template name, default "groupby-<attribute>.html"

	Split    string // delimiter for the built-in split grouping; "" takes values whole
	Disabled bool   // the zero value keeps the watcher enabled

	KeyObjFn       string            // expression transforming raw key objects
	ReplaceNoneKey string            // substitute for empty keys, default "none"
	Fields         map[string]any    // extra group fields; string values are expressions
	KeyMap         map[string]string // raw key replacements applied before slugify
	OrderBy        []SortKey         // children ordering

	Pagination PaginationConfig

	// Dependencies lists extra files whose change invalidates the
	// built group set. Entries may be files, directories or glob
	// patterns (including "**").
	Dependencies []string
}

// PaginationConfig controls splitting a group's children into pages.
type PaginationConfig struct {
	Enabled   bool
	PerPage   int    // default 20
	URLSuffix string // default "page"

	// Items is an optional expression selecting the paginated
	// sequence. It is evaluated with "this" and "children" in scope
	// and must yield a list of child record paths; children not in the
	// result are left out, in the order the expression produced.
	Items string
}

// SortKey is one component of an ordering: a field name and a
// direction.
type SortKey struct {
	Field string
	Desc  bool
}

// ParseOrderBy parses a comma-separated ordering spec. A "-" prefix
// reverses that key: "-pub_date,title".
func ParseOrderBy(spec string) []SortKey {
	var keys []SortKey
	for _, part := range strings.Split(spec, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		key := SortKey{Field: part}
		if strings.HasPrefix(part, "-") {
			key = SortKey{Field: strings.TrimSpace(part[1:]), Desc: true}
		}
		keys = append(keys, key)
	}
	return keys
}

// attrPattern restricts attribute names to something that can appear
// in URLs and virtual paths without escaping.
var attrPattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_-]*$`)

// compiledConfig is a validated Config with defaults applied and all
// expressions compiled.
type compiledConfig struct {
	Config

	enabled    bool
	slug       string // "" when groups are not addressable
	slugKeyed  bool   // slug uses "{key}" substitution
	slugExpr   *expr  // compiled slug, when not keyed
	keyObjFn   *expr
	fieldExprs map[string]any // field name -> literal or *expr
	fieldNames []string       // sorted
	itemsExpr  *expr
}

// compileConfig validates a Config for the given attribute and
// compiles its expressions. All problems are accumulated and returned
// together as a ConfigError; a config that fails validation is not
// applied at all.
func compileConfig(attribute string, c Config) (*compiledConfig, error) {
	var errs []error

	if attribute == "" {
		errs = append(errs, fmt.Errorf("attribute name is empty"))
	} else if !attrPattern.MatchString(attribute) {
		errs = append(errs, fmt.Errorf("attribute name %q is not a valid identifier", attribute))
	}
	if c.Attribute != "" && c.Attribute != attribute {
		errs = append(errs, fmt.Errorf("config names attribute %q, registered as %q", c.Attribute, attribute))
	}

	cc := &compiledConfig{Config: c, enabled: !c.Disabled}
	cc.Attribute = attribute
	cc.Root = source.NormalizePath(c.Root)

	if cc.Template == "" {
		cc.Template = "groupby-" + attribute + ".html"
	}
	if cc.ReplaceNoneKey == "" {
		cc.ReplaceNoneKey = defaultNoneKey
	}

	if !c.NoSlug {
		cc.slug = c.Slug
		if cc.slug == "" {
			cc.slug = attribute + "/{key}/"
		}
		if strings.Contains(cc.slug, "{key}") {
			cc.slugKeyed = true
		} else {
			x, err := compileExpr(cc.slug)
			if err != nil {
				errs = append(errs, fmt.Errorf("slug: %w", err))
			}
			cc.slugExpr = x
		}
	}

	if c.KeyObjFn != "" {
		x, err := compileExpr(c.KeyObjFn)
		if err != nil {
			errs = append(errs, fmt.Errorf("key_obj_fn: %w", err))
		}
		cc.keyObjFn = x
	}

	if len(c.Fields) > 0 {
		cc.fieldExprs = make(map[string]any, len(c.Fields))
		for name, value := range c.Fields {
			if src, ok := value.(string); ok {
				x, err := compileExpr(src)
				if err != nil {
					errs = append(errs, fmt.Errorf("field %q: %w", name, err))
					continue
				}
				cc.fieldExprs[name] = x
			} else {
				cc.fieldExprs[name] = value
			}
			cc.fieldNames = append(cc.fieldNames, name)
		}
		sort.Strings(cc.fieldNames)
	}

	for i, key := range c.OrderBy {
		if key.Field == "" {
			errs = append(errs, fmt.Errorf("order_by key %d is empty", i+1))
		}
	}

	if c.Pagination.Enabled {
		switch {
		case cc.Pagination.PerPage == 0:
			cc.Pagination.PerPage = defaultPerPage
		case cc.Pagination.PerPage < 0:
			errs = append(errs, fmt.Errorf("pagination per_page %d is not positive", c.Pagination.PerPage))
		}
		if cc.Pagination.URLSuffix == "" {
			cc.Pagination.URLSuffix = defaultPageSuffix
		}
		if strings.Contains(cc.Pagination.URLSuffix, "/") {
			errs = append(errs, fmt.Errorf("pagination url_suffix %q contains a slash", c.Pagination.URLSuffix))
		}
		if c.Pagination.Items != "" {
			x, err := compileExpr(c.Pagination.Items)
			if err != nil {
				errs = append(errs, fmt.Errorf("pagination items: %w", err))
			}
			cc.itemsExpr = x
		}
	}

	if err := newConfigError(attribute, errs); err != nil {
		return nil, err
	}
	return cc, nil
}

// view builds the read-only projection exposed to templates.
func (cc *compiledConfig) view() ConfigView {
	v := ConfigView{
		Attribute:      cc.Attribute,
		Root:           cc.Root,
		Slug:           cc.slug,
		Template:       cc.Template,
		Split:          cc.Split,
		Enabled:        cc.enabled,
		ReplaceNoneKey: cc.ReplaceNoneKey,
		Pagination:     cc.Pagination,
	}
	if len(cc.KeyMap) > 0 {
		v.KeyMap = make(map[string]string, len(cc.KeyMap))
		for k, val := range cc.KeyMap {
			v.KeyMap[k] = val
		}
	}
	v.OrderBy = append([]SortKey(nil), cc.OrderBy...)
	v.Dependencies = append([]string(nil), cc.Dependencies...)
	return v
}

// ConfigView is the read-only projection of a watcher's configuration
// exposed on GroupBySource.
type ConfigView struct {
	Attribute      string
	Root           string
	Slug           string
	Template       string
	Split          string
	Enabled        bool
	ReplaceNoneKey string
	KeyMap         map[string]string
	OrderBy        []SortKey
	Pagination     PaginationConfig
	Dependencies   []string
}

// ParseMap builds a Config from a loosely-typed mapping, as produced
// by configuration files or plugin settings. Keys follow the config
// file surface: root, slug, template, split, enabled, key_obj_fn,
// replace_none_key, fields, key_map, order_by (or children.order_by),
// pagination.{enabled,per_page,url_suffix,items}, dependencies.
// Unknown keys are ignored.
func ParseMap(m map[string]any) (Config, error) {
	var wire struct {
		Attribute      string            `mapstructure:"attribute"`
		Root           string            `mapstructure:"root"`
		Slug           *string           `mapstructure:"slug"`
		Template       string            `mapstructure:"template"`
		Split          string            `mapstructure:"split"`
		Enabled        *bool             `mapstructure:"enabled"`
		KeyObjFn       string            `mapstructure:"key_obj_fn"`
		ReplaceNoneKey string            `mapstructure:"replace_none_key"`
		Fields         map[string]any    `mapstructure:"fields"`
		KeyMap         map[string]string `mapstructure:"key_map"`
		OrderBy        string            `mapstructure:"order_by"`
		Children       struct {
			OrderBy string `mapstructure:"order_by"`
		} `mapstructure:"children"`
		Pagination struct {
			Enabled   bool   `mapstructure:"enabled"`
			PerPage   int    `mapstructure:"per_page"`
			URLSuffix string `mapstructure:"url_suffix"`
			Items     string `mapstructure:"items"`
		} `mapstructure:"pagination"`
		Dependencies []string `mapstructure:"dependencies"`
	}

	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &wire,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return Config{}, err
	}
	if err := dec.Decode(m); err != nil {
		return Config{}, fmt.Errorf("failed to decode config map: %w", err)
	}

	cfg := Config{
		Attribute:      wire.Attribute,
		Root:           wire.Root,
		Template:       wire.Template,
		Split:          wire.Split,
		KeyObjFn:       wire.KeyObjFn,
		ReplaceNoneKey: wire.ReplaceNoneKey,
		Fields:         wire.Fields,
		KeyMap:         wire.KeyMap,
		Dependencies:   wire.Dependencies,
		Pagination: PaginationConfig{
			Enabled:   wire.Pagination.Enabled,
			PerPage:   wire.Pagination.PerPage,
			URLSuffix: wire.Pagination.URLSuffix,
			Items:     wire.Pagination.Items,
		},
	}
	if wire.Slug != nil {
		if *wire.Slug == "" {
			cfg.NoSlug = true
		} else {
			cfg.Slug = *wire.Slug
		}
	}
	if wire.Enabled != nil {
		cfg.Disabled = !*wire.Enabled
	}
	orderBy := wire.Children.OrderBy
	if orderBy == "" {
		orderBy = wire.OrderBy
	}
	if orderBy != "" {
		cfg.OrderBy = ParseOrderBy(orderBy)
	}
	return cfg, nil
}

// ParseINIFile reads watcher configs from an INI file: one top-level
// section per attribute, with optional "<attr>.fields", "<attr>.key_map",
// "<attr>.pagination" and "<attr>.children" sections:
//
//	[tags]
//	root = /blog
//	split = ,
//
//	[tags.fields]
//	title = "Tagged ${this.key}"
//
//	[tags.pagination]
//	enabled = true
//	per_page = 10
//
// The returned map is keyed by attribute.
func ParseINIFile(fsys afero.Fs, path string) (map[string]Config, error) {
	data, err := afero.ReadFile(fsys, path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	cfgs, err := parseINI(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return cfgs, nil
}

func parseINI(data []byte) (map[string]Config, error) {
	f, err := ini.Load(data)
	if err != nil {
		return nil, err
	}

	out := make(map[string]Config)
	for _, sec := range f.Sections() {
		name := sec.Name()
		if name == ini.DefaultSection || strings.Contains(name, ".") {
			continue
		}
		cfg := Config{Attribute: name}
		var errs []error

		if sec.HasKey("root") {
			cfg.Root = sec.Key("root").String()
		}
		if sec.HasKey("slug") {
			if s := sec.Key("slug").String(); s == "" {
				cfg.NoSlug = true
			} else {
				cfg.Slug = s
			}
		}
		cfg.Template = sec.Key("template").String()
		cfg.Split = sec.Key("split").String()
		cfg.KeyObjFn = sec.Key("key_obj_fn").String()
		cfg.ReplaceNoneKey = sec.Key("replace_none_key").String()
		if sec.HasKey("enabled") {
			enabled, err := sec.Key("enabled").Bool()
			if err != nil {
				errs = append(errs, fmt.Errorf("enabled: %w", err))
			} else {
				cfg.Disabled = !enabled
			}
		}
		if sec.HasKey("dependencies") {
			for _, dep := range sec.Key("dependencies").Strings(",") {
				if dep != "" {
					cfg.Dependencies = append(cfg.Dependencies, dep)
				}
			}
		}

		if fsec, err := f.GetSection(name + ".fields"); err == nil {
			cfg.Fields = make(map[string]any, len(fsec.Keys()))
			for _, k := range fsec.Keys() {
				cfg.Fields[k.Name()] = k.String()
			}
		}
		if msec, err := f.GetSection(name + ".key_map"); err == nil {
			cfg.KeyMap = make(map[string]string, len(msec.Keys()))
			for _, k := range msec.Keys() {
				cfg.KeyMap[k.Name()] = k.String()
			}
		}
		if csec, err := f.GetSection(name + ".children"); err == nil {
			if csec.HasKey("order_by") {
				cfg.OrderBy = ParseOrderBy(csec.Key("order_by").String())
			}
		}
		if psec, err := f.GetSection(name + ".pagination"); err == nil {
			if psec.HasKey("enabled") {
				enabled, err := psec.Key("enabled").Bool()
				if err != nil {
					errs = append(errs, fmt.Errorf("pagination enabled: %w", err))
				} else {
					cfg.Pagination.Enabled = enabled
				}
			}
			if psec.HasKey("per_page") {
				n, err := strconv.Atoi(psec.Key("per_page").String())
				if err != nil {
					errs = append(errs, fmt.Errorf("pagination per_page %q is not a number", psec.Key("per_page").String()))
				} else {
					cfg.Pagination.PerPage = n
				}
			}
			cfg.Pagination.URLSuffix = psec.Key("url_suffix").String()
			cfg.Pagination.Items = psec.Key("items").String()
		}

		if err := newConfigError(name, errs); err != nil {
			return nil, err
		}
		out[name] = cfg
	}
	return out, nil
}
