package groupby

import (
	"fmt"
	"math/big"
	"path"
	"time"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
	"github.com/zclconf/go-cty/cty/function"
	"github.com/zclconf/go-cty/cty/function/stdlib"

	"github.com/gophersatwork/groupby/source"
)

// expr is a compiled config expression. Config values are parsed as
// HCL templates, so plain strings stay literal, "${...}" interpolates,
// and a template that is a single interpolation keeps the value's
// type instead of stringifying it.
type expr struct {
	src string
	hcl hcl.Expression
}

// compileExpr parses an expression source string. Compilation errors
// surface at watcher registration, not at first evaluation.
func compileExpr(src string) (*expr, error) {
	parsed, diags := hclsyntax.ParseTemplate([]byte(src), "<config>", hcl.InitialPos)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse expression %q: %w", src, diags)
	}
	return &expr{src: src, hcl: parsed}, nil
}

// eval evaluates the expression with the given variables in scope and
// converts the result to plain Go values.
func (x *expr) eval(vars map[string]cty.Value) (any, error) {
	v, diags := x.hcl.Value(&hcl.EvalContext{
		Variables: vars,
		Functions: exprFunctions,
	})
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to evaluate %q: %w", x.src, diags)
	}
	return ctyToGo(v)
}

// evalString evaluates the expression and converts the result to a
// string. A null result becomes "".
func (x *expr) evalString(vars map[string]cty.Value) (string, error) {
	v, diags := x.hcl.Value(&hcl.EvalContext{
		Variables: vars,
		Functions: exprFunctions,
	})
	if diags.HasErrors() {
		return "", fmt.Errorf("failed to evaluate %q: %w", x.src, diags)
	}
	if v.IsNull() {
		return "", nil
	}
	conv, err := convert.Convert(v, cty.String)
	if err != nil {
		return "", fmt.Errorf("expression %q did not produce a string: %w", x.src, err)
	}
	return conv.AsString(), nil
}

// exprFunctions is the function table available to config expressions.
var exprFunctions = map[string]function.Function{
	"coalesce":   stdlib.CoalesceFunc,
	"format":     stdlib.FormatFunc,
	"join":       stdlib.JoinFunc,
	"length":     stdlib.LengthFunc,
	"lower":      stdlib.LowerFunc,
	"replace":    stdlib.ReplaceFunc,
	"split":      stdlib.SplitFunc,
	"substr":     stdlib.SubstrFunc,
	"trim":       stdlib.TrimFunc,
	"trimprefix": stdlib.TrimPrefixFunc,
	"trimspace":  stdlib.TrimSpaceFunc,
	"trimsuffix": stdlib.TrimSuffixFunc,
	"upper":      stdlib.UpperFunc,
}

// ctyToGo converts an evaluated cty value into plain Go values:
// string, bool, int64/float64, []any and map[string]any.
func ctyToGo(v cty.Value) (any, error) {
	if v == cty.NilVal || v.IsNull() {
		return nil, nil
	}
	if !v.IsKnown() {
		return nil, fmt.Errorf("expression result is not known")
	}

	t := v.Type()
	switch {
	case t == cty.String:
		return v.AsString(), nil
	case t == cty.Bool:
		return v.True(), nil
	case t == cty.Number:
		bf := v.AsBigFloat()
		if i, acc := bf.Int64(); acc == big.Exact {
			return i, nil
		}
		f, _ := bf.Float64()
		return f, nil
	case t.IsTupleType() || t.IsListType() || t.IsSetType():
		var out []any
		for it := v.ElementIterator(); it.Next(); {
			_, ev := it.Element()
			g, err := ctyToGo(ev)
			if err != nil {
				return nil, err
			}
			out = append(out, g)
		}
		return out, nil
	case t.IsObjectType() || t.IsMapType():
		out := make(map[string]any)
		for it := v.ElementIterator(); it.Next(); {
			kv, ev := it.Element()
			g, err := ctyToGo(ev)
			if err != nil {
				return nil, err
			}
			out[kv.AsString()] = g
		}
		return out, nil
	}
	return nil, fmt.Errorf("unsupported expression result type %s", t.FriendlyName())
}

// goToCty converts a field value into a cty value for use in an
// expression scope. Values with no sensible mapping become null rather
// than failing the whole evaluation.
func goToCty(v any) cty.Value {
	switch val := v.(type) {
	case nil:
		return cty.NullVal(cty.DynamicPseudoType)
	case cty.Value:
		return val
	case string:
		return cty.StringVal(val)
	case bool:
		return cty.BoolVal(val)
	case int:
		return cty.NumberIntVal(int64(val))
	case int8:
		return cty.NumberIntVal(int64(val))
	case int16:
		return cty.NumberIntVal(int64(val))
	case int32:
		return cty.NumberIntVal(int64(val))
	case int64:
		return cty.NumberIntVal(val)
	case uint:
		return cty.NumberUIntVal(uint64(val))
	case uint8:
		return cty.NumberUIntVal(uint64(val))
	case uint16:
		return cty.NumberUIntVal(uint64(val))
	case uint32:
		return cty.NumberUIntVal(uint64(val))
	case uint64:
		return cty.NumberUIntVal(val)
	case float32:
		return cty.NumberFloatVal(float64(val))
	case float64:
		return cty.NumberFloatVal(val)
	case []byte:
		return cty.StringVal(string(val))
	case time.Time:
		return cty.StringVal(val.Format(time.RFC3339))
	case []string:
		elems := make([]cty.Value, len(val))
		for i, s := range val {
			elems[i] = cty.StringVal(s)
		}
		return tupleVal(elems)
	case []any:
		elems := make([]cty.Value, len(val))
		for i, el := range val {
			elems[i] = goToCty(el)
		}
		return tupleVal(elems)
	case map[string]string:
		attrs := make(map[string]cty.Value, len(val))
		for k, s := range val {
			attrs[k] = cty.StringVal(s)
		}
		return objectVal(attrs)
	case map[string]any:
		attrs := make(map[string]cty.Value, len(val))
		for k, el := range val {
			attrs[k] = goToCty(el)
		}
		return objectVal(attrs)
	case *source.Flow:
		if val == nil {
			return cty.NullVal(cty.DynamicPseudoType)
		}
		elems := make([]cty.Value, len(val.Blocks))
		for i, b := range val.Blocks {
			elems[i] = blockToCty(b)
		}
		return tupleVal(elems)
	case *source.Block:
		return blockToCty(val)
	case fmt.Stringer:
		return cty.StringVal(val.String())
	}
	return cty.NullVal(cty.DynamicPseudoType)
}

// blockToCty exposes a flow block as an object with its type under
// "_flowblock", matching the on-disk form.
func blockToCty(b *source.Block) cty.Value {
	if b == nil {
		return cty.NullVal(cty.DynamicPseudoType)
	}
	attrs := map[string]cty.Value{
		"_flowblock": cty.StringVal(b.Type()),
	}
	for _, k := range b.Keys() {
		attrs[k] = goToCty(b.Get(k))
	}
	return objectVal(attrs)
}

// recordToCty exposes a record to expressions: path, url_path, model,
// id and a fields object holding the record's declared field values.
func recordToCty(tree source.Tree, rec source.Record) cty.Value {
	if rec == nil {
		return cty.NullVal(cty.DynamicPseudoType)
	}
	attrs := map[string]cty.Value{
		"path":     cty.StringVal(rec.Path()),
		"url_path": cty.StringVal(rec.URLPath()),
		"model":    cty.StringVal(rec.ModelID()),
		"id":       cty.StringVal(path.Base(rec.Path())),
	}
	fields := make(map[string]cty.Value)
	if model := tree.Models()[rec.ModelID()]; model != nil {
		for _, f := range model.Fields {
			fields[f.Name] = goToCty(rec.Get(f.Name))
		}
	}
	attrs["fields"] = objectVal(fields)
	return cty.ObjectVal(attrs)
}

// keyPathToCty exposes a field key path to expressions.
func keyPathToCty(k FieldKeyPath) cty.Value {
	block := cty.NullVal(cty.Number)
	blockField := cty.NullVal(cty.String)
	if k.InFlow() {
		block = cty.NumberIntVal(int64(k.Block))
		blockField = cty.StringVal(k.BlockField)
	}
	return cty.ObjectVal(map[string]cty.Value{
		"field":       cty.StringVal(k.Field),
		"block":       block,
		"block_field": blockField,
	})
}

func tupleVal(elems []cty.Value) cty.Value {
	if len(elems) == 0 {
		return cty.EmptyTupleVal
	}
	return cty.TupleVal(elems)
}

func objectVal(attrs map[string]cty.Value) cty.Value {
	if len(attrs) == 0 {
		return cty.EmptyObjectVal
	}
	return cty.ObjectVal(attrs)
}
