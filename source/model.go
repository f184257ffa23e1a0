package source

import "strings"

// Model declares the fields of a record type.
type Model struct {
	ID     string
	Fields []Field
}

// FlowModel declares the fields of one flow-block type.
type FlowModel struct {
	ID     string
	Fields []Field
}

// Field is one declared field of a Model or FlowModel.
//
// Options carries free-form schema flags. A grouping attribute is such
// a flag: a field participates in grouping for attribute "tags" when
// Options["tags"] holds a true-ish value.
type Field struct {
	Name    string
	Type    string            // "string", "strings", "flow", ...
	Options map[string]string // free-form flags, attribute markers included

	// BlockTypes restricts which flow-block types a flow field may
	// hold. nil means any type is allowed. Ignored on non-flow fields.
	BlockTypes []string
}

// Flagged reports whether the field carries the given attribute flag.
func (f Field) Flagged(attribute string) bool {
	return isTrue(f.Options[attribute])
}

// IsFlow reports whether the field holds flow content.
func (f Field) IsFlow() bool {
	return f.Type == "flow"
}

// AllowsBlock reports whether a flow field accepts the given block
// type.
func (f Field) AllowsBlock(blockType string) bool {
	if f.BlockTypes == nil {
		return true
	}
	for _, t := range f.BlockTypes {
		if t == blockType {
			return true
		}
	}
	return false
}

// Field returns the named field declaration and whether it exists.
func (m *Model) Field(name string) (Field, bool) {
	for _, f := range m.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// Field returns the named field declaration and whether it exists.
func (m *FlowModel) Field(name string) (Field, bool) {
	for _, f := range m.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// isTrue interprets a schema flag value: "1", "true", "yes" and "on"
// count as true, everything else as false.
func isTrue(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}
