package source

import (
	"fmt"
	"path"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/afero"
)

// recordFile is the filename that marks a content directory as a
// record.
const recordFile = "record.toml"

// Load reads a site tree from a directory on the given filesystem:
//
//	dir/
//	  models/*.toml        record models
//	  flowblocks/*.toml    flow-block models
//	  content/             the record tree; every directory holding a
//	                       record.toml is a record, every other file
//	                       next to it becomes an attachment
//
// Flow fields are written as arrays of TOML tables carrying a
// _flowblock key naming the block type:
//
//	[[body]]
//	_flowblock = "text"
//	text = "..."
//
// A content directory without a record.toml still appears in the tree
// as an empty pass-through record, so deeper records stay reachable.
func Load(fsys afero.Fs, dir string) (*MemTree, error) {
	t := NewMemTree()

	if err := loadModels(fsys, filepath.Join(dir, "models"), func(id string, fields []Field) {
		t.AddModel(&Model{ID: id, Fields: fields})
	}); err != nil {
		return nil, err
	}
	if err := loadModels(fsys, filepath.Join(dir, "flowblocks"), func(id string, fields []Field) {
		t.AddFlowModel(&FlowModel{ID: id, Fields: fields})
	}); err != nil {
		return nil, err
	}

	contentDir := filepath.Join(dir, "content")
	exists, err := afero.DirExists(fsys, contentDir)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("content directory %s not found", contentDir)
	}
	if err := loadContentDir(fsys, t, contentDir, ""); err != nil {
		return nil, err
	}
	return t, nil
}

// loadModels parses every *.toml file in dir, in name order. A missing
// directory is fine: the site simply declares no models of that kind.
func loadModels(fsys afero.Fs, dir string, add func(id string, fields []Field)) error {
	exists, err := afero.DirExists(fsys, dir)
	if err != nil {
		return err
	}
	if !exists {
		return nil
	}

	infos, err := afero.ReadDir(fsys, dir)
	if err != nil {
		return err
	}
	for _, info := range infos {
		if info.IsDir() || !strings.HasSuffix(info.Name(), ".toml") {
			continue
		}
		p := filepath.Join(dir, info.Name())
		b, err := afero.ReadFile(fsys, p)
		if err != nil {
			return err
		}
		var mf struct {
			ID     string           `toml:"id"`
			Fields []map[string]any `toml:"fields"`
		}
		if err := toml.Unmarshal(b, &mf); err != nil {
			return fmt.Errorf("failed to parse model %s: %w", p, err)
		}
		id := mf.ID
		if id == "" {
			id = strings.TrimSuffix(info.Name(), ".toml")
		}
		fields, err := parseFields(mf.Fields)
		if err != nil {
			return fmt.Errorf("model %s: %w", p, err)
		}
		add(id, fields)
	}
	return nil
}

// parseFields turns the [[fields]] tables of a model file into Field
// declarations. Keys other than name, type and block_types become
// options, so attribute flags need no special syntax.
func parseFields(raw []map[string]any) ([]Field, error) {
	fields := make([]Field, 0, len(raw))
	for i, fm := range raw {
		name, _ := fm["name"].(string)
		if name == "" {
			return nil, fmt.Errorf("field %d has no name", i)
		}
		f := Field{
			Name:    name,
			Type:    "string",
			Options: make(map[string]string),
		}
		if typ, ok := fm["type"].(string); ok && typ != "" {
			f.Type = typ
		}
		if bts, ok := fm["block_types"].([]any); ok {
			for _, bt := range bts {
				if s, ok := bt.(string); ok {
					f.BlockTypes = append(f.BlockTypes, s)
				}
			}
		}
		for k, v := range fm {
			switch k {
			case "name", "type", "block_types", "label":
				continue
			}
			f.Options[k] = optionString(v)
		}
		fields = append(fields, f)
	}
	return fields, nil
}

// optionString renders a TOML option value as the string form used in
// Field.Options.
func optionString(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case bool:
		return strconv.FormatBool(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case float64:
		return strconv.FormatFloat(val, 'g', -1, 64)
	default:
		return fmt.Sprintf("%v", val)
	}
}

// loadContentDir loads the record at fsDir and recurses into its
// sub-directories. recPath is the record path of fsDir, "" on the
// first call (which becomes the root record "/").
func loadContentDir(fsys afero.Fs, t *MemTree, fsDir, recPath string) error {
	var modelID string
	fields := map[string]any{}
	srcFile := ""

	rf := filepath.Join(fsDir, recordFile)
	if ok, err := afero.Exists(fsys, rf); err != nil {
		return err
	} else if ok {
		b, err := afero.ReadFile(fsys, rf)
		if err != nil {
			return err
		}
		var raw map[string]any
		if err := toml.Unmarshal(b, &raw); err != nil {
			return fmt.Errorf("failed to parse record %s: %w", rf, err)
		}
		modelID, _ = raw["_model"].(string)
		for k, v := range raw {
			if strings.HasPrefix(k, "_") {
				continue
			}
			fields[k] = convertFieldValue(t, v)
		}
		srcFile = rf
	}

	var rec *MemRecord
	var err error
	if recPath == "" {
		recPath = "/"
		rec, err = t.AddRecord("", "/", modelID, fields)
	} else {
		rec, err = t.AddRecord(path.Dir(recPath), path.Base(recPath), modelID, fields)
	}
	if err != nil {
		return err
	}
	if srcFile != "" {
		rec.SetSourceFilenames(filepath.ToSlash(srcFile))
	}

	infos, err := afero.ReadDir(fsys, fsDir)
	if err != nil {
		return err
	}
	// Attachments first, then child records, each in name order.
	for _, info := range infos {
		if info.IsDir() || info.Name() == recordFile {
			continue
		}
		at, err := t.AddAttachment(recPath, info.Name(), "", nil)
		if err != nil {
			return err
		}
		at.SetSourceFilenames(filepath.ToSlash(filepath.Join(fsDir, info.Name())))
	}
	for _, info := range infos {
		if !info.IsDir() {
			continue
		}
		childPath := JoinPath(recPath, info.Name())
		if err := loadContentDir(fsys, t, filepath.Join(fsDir, info.Name()), childPath); err != nil {
			return err
		}
	}
	return nil
}

// convertFieldValue maps decoded TOML values onto the field value
// types the engine understands. Arrays of tables that all carry a
// _flowblock key become *Flow values; all-string arrays become
// []string.
func convertFieldValue(t *MemTree, v any) any {
	arr, ok := v.([]any)
	if !ok {
		return v
	}
	if len(arr) == 0 {
		return arr
	}

	if blocks, ok := flowBlocks(t, arr); ok {
		return &Flow{Blocks: blocks}
	}

	strs := make([]string, 0, len(arr))
	for _, el := range arr {
		s, ok := el.(string)
		if !ok {
			return arr
		}
		strs = append(strs, s)
	}
	return strs
}

// flowBlocks converts an array of tables into flow blocks. It reports
// false unless every element is a table carrying a _flowblock type.
func flowBlocks(t *MemTree, arr []any) ([]*Block, bool) {
	blocks := make([]*Block, 0, len(arr))
	for _, el := range arr {
		table, ok := el.(map[string]any)
		if !ok {
			return nil, false
		}
		blockType, ok := table["_flowblock"].(string)
		if !ok || blockType == "" {
			return nil, false
		}
		b := NewBlock(blockType)
		for _, k := range blockKeys(t, blockType, table) {
			b.Set(k, convertFieldValue(t, table[k]))
		}
		blocks = append(blocks, b)
	}
	return blocks, true
}

// blockKeys orders a decoded block table: declared model fields first,
// in declaration order, then any leftover keys sorted by name. TOML
// maps lose ordering, so the model is the only stable order we have.
func blockKeys(t *MemTree, blockType string, table map[string]any) []string {
	seen := map[string]bool{"_flowblock": true}
	var keys []string
	if fm := t.flowModels[blockType]; fm != nil {
		for _, f := range fm.Fields {
			if _, ok := table[f.Name]; ok {
				keys = append(keys, f.Name)
				seen[f.Name] = true
			}
		}
	}
	var rest []string
	for k := range table {
		if !seen[k] {
			rest = append(rest, k)
		}
	}
	sort.Strings(rest)
	return append(keys, rest...)
}
