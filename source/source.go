// Package source defines the content-tree contract consumed by the
// grouping engine: records with typed fields, the models that declare
// those fields, and flow values (ordered block sequences) nested inside
// them.
//
// The engine never assumes a concrete host. Anything that can present
// its pages as a Tree of Records can be grouped. The package also ships
// a reference implementation: MemTree/MemRecord for programmatic trees
// and tests, and Load for reading a small TOML site off an afero
// filesystem.
package source

// Record is one page or attachment in the host content tree.
//
// Implementations must return stable values for a fixed tree: the
// engine's build cache assumes that two scans over an unchanged tree
// observe identical paths, fields and child ordering.
type Record interface {
	// Path returns the tree path of the record ("/" separated, leading
	// slash, no trailing slash except for the root "/").
	Path() string

	// URLPath returns the public URL path the record is served under.
	URLPath() string

	// ModelID names the model describing this record's fields. It may
	// be empty for records without a schema (such as attachments).
	ModelID() string

	// Get returns the value of the named field, or nil when the field
	// is absent. Flow fields return *Flow.
	Get(field string) any

	// Children returns the record's sub-pages in a deterministic order.
	Children() []Record

	// Attachments returns the record's attachments in a deterministic
	// order.
	Attachments() []Record

	// SourceFilenames returns the files backing this record, if any.
	// The engine fingerprints them to detect content changes.
	SourceFilenames() []string
}

// Tree is the host content tree.
type Tree interface {
	// Get returns the record at the given path, or nil if none exists.
	Get(path string) Record

	// Roots returns the top-level records of the tree. Most hosts have
	// exactly one root at "/".
	Roots() []Record

	// Models returns the record models by id.
	Models() map[string]*Model

	// FlowModels returns the flow-block models by id.
	FlowModels() map[string]*FlowModel
}

// Walk visits rec and everything beneath it in a fixed pre-order: the
// record itself, then its attachments, then each child subtree in
// order. Traversal stops at the first error, which is returned.
func Walk(rec Record, visit func(Record) error) error {
	if rec == nil {
		return nil
	}
	if err := visit(rec); err != nil {
		return err
	}
	for _, at := range rec.Attachments() {
		if err := visit(at); err != nil {
			return err
		}
	}
	for _, child := range rec.Children() {
		if err := Walk(child, visit); err != nil {
			return err
		}
	}
	return nil
}

// Flow is the value of a flow field: an ordered sequence of typed
// blocks.
type Flow struct {
	Blocks []*Block
}

// Block is one unit inside a Flow. Its data keeps insertion order so
// scans over a fixed tree stay deterministic.
type Block struct {
	blockType string
	keys      []string
	values    map[string]any
}

// NewBlock creates an empty block of the given flow-block type.
func NewBlock(blockType string) *Block {
	return &Block{
		blockType: blockType,
		values:    make(map[string]any),
	}
}

// Type returns the block's flow-block model id.
func (b *Block) Type() string {
	return b.blockType
}

// Set stores a field value on the block and returns the block, so
// calls can be chained when building blocks by hand.
func (b *Block) Set(key string, value any) *Block {
	if _, ok := b.values[key]; !ok {
		b.keys = append(b.keys, key)
	}
	b.values[key] = value
	return b
}

// Get returns the block field value, or nil when absent.
func (b *Block) Get(key string) any {
	return b.values[key]
}

// Keys returns the block's field names in insertion order.
func (b *Block) Keys() []string {
	out := make([]string, len(b.keys))
	copy(out, b.keys)
	return out
}
