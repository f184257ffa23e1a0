package groupby

import (
	"github.com/gophersatwork/groupby/source"
)

// scanner finds the field occurrences carrying one watched attribute.
// It snapshots the tree's model maps at construction so one build
// works against a single schema view.
type scanner struct {
	attribute  string
	flatten    bool
	models     map[string]*source.Model
	flowModels map[string]*source.FlowModel
}

func newScanner(tree source.Tree, attribute string, flatten bool) *scanner {
	return &scanner{
		attribute:  attribute,
		flatten:    flatten,
		models:     tree.Models(),
		flowModels: tree.FlowModels(),
	}
}

// read returns the occurrences of one record, in model declaration
// order; for flow fields, blocks by index, then block-model field
// order. Records without a known model have no occurrences.
//
// Flagged plain fields emit an occurrence even when the value is
// absent, so a callback can decide whether "no value" still means
// membership. Flow fields scanned with flatten emit one occurrence
// per flagged block field; without flatten the whole flow value is
// one occurrence when the flow field itself is flagged.
func (s *scanner) read(rec source.Record) []CallbackArgs {
	model := s.models[rec.ModelID()]
	if model == nil {
		return nil
	}

	var out []CallbackArgs
	for _, f := range model.Fields {
		if f.IsFlow() && s.flatten {
			flow, _ := rec.Get(f.Name).(*source.Flow)
			if flow == nil {
				continue
			}
			for i, block := range flow.Blocks {
				if !f.AllowsBlock(block.Type()) {
					continue
				}
				fm := s.flowModels[block.Type()]
				if fm == nil {
					continue
				}
				for _, bf := range fm.Fields {
					if !bf.Flagged(s.attribute) {
						continue
					}
					out = append(out, CallbackArgs{
						Record: rec,
						Key:    BlockFieldKey(f.Name, i, bf.Name),
						Field:  block.Get(bf.Name),
					})
				}
			}
			continue
		}
		if f.Flagged(s.attribute) {
			out = append(out, CallbackArgs{
				Record: rec,
				Key:    FieldKey(f.Name),
				Field:  rec.Get(f.Name),
			})
		}
	}
	return out
}
