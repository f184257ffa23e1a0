package groupby

import (
	"fmt"
	"math/big"
	"strconv"

	"github.com/zclconf/go-cty/cty"

	"github.com/gophersatwork/groupby/source"
)

// FieldKeyPath identifies where inside a record a watched field value
// was found: a plain field, or a field of one flow block.
type FieldKeyPath struct {
	Field      string // record field name
	Block      int    // flow block index, -1 outside flow content
	BlockField string // field name inside the block, "" outside flow content
}

// FieldKey builds the path of a plain record field.
func FieldKey(field string) FieldKeyPath {
	return FieldKeyPath{Field: field, Block: -1}
}

// BlockFieldKey builds the path of a field inside a flow block.
func BlockFieldKey(field string, block int, blockField string) FieldKeyPath {
	return FieldKeyPath{Field: field, Block: block, BlockField: blockField}
}

// InFlow reports whether the path points inside a flow block.
func (k FieldKeyPath) InFlow() bool {
	return k.Block >= 0
}

// String renders the path, e.g. "tags" or "body[2].tag".
func (k FieldKeyPath) String() string {
	if !k.InFlow() {
		return k.Field
	}
	return fmt.Sprintf("%s[%d].%s", k.Field, k.Block, k.BlockField)
}

// CallbackArgs is one occurrence of a watched attribute: the record it
// was found on, where in the record, and the raw field value.
type CallbackArgs struct {
	Record source.Record
	Key    FieldKeyPath
	Field  any
}

// transformRaw applies the key_obj_fn expression to a raw key object.
// The expression sees "key" (the raw object), "record", "field" and
// "fieldkey". A list result replaces the one object with its elements,
// so a single yield can fan out into several groups. Without a
// key_obj_fn the object passes through untouched.
func (w *Watcher) transformRaw(raw any, args CallbackArgs) ([]any, error) {
	if w.config.keyObjFn == nil {
		return []any{raw}, nil
	}
	out, err := w.config.keyObjFn.eval(map[string]cty.Value{
		"key":      goToCty(raw),
		"record":   recordToCty(w.engine.tree, args.Record),
		"field":    goToCty(args.Field),
		"fieldkey": keyPathToCty(args.Key),
	})
	if err != nil {
		return nil, err
	}
	if list, ok := out.([]any); ok {
		return list, nil
	}
	return []any{out}, nil
}

// finalizeKey turns one (possibly transformed) raw key object into the
// final group key: empty objects are replaced with the configured
// none-key, the string form is run through the key map, and the result
// is slugified. The returned key object is the value before the key
// map applied, which is what the group exposes as KeyObj.
//
// finalizeKey is pure apart from reading config; it never mutates
// shared state.
func (w *Watcher) finalizeKey(obj any) (string, any, error) {
	s, ok := rawKeyString(obj)
	if !ok {
		return "", nil, &InvalidYieldError{Value: obj}
	}

	keyObj := obj
	if s == "" {
		s = w.config.ReplaceNoneKey
		keyObj = s
	}
	if mapped, ok := w.config.KeyMap[s]; ok {
		s = mapped
	}
	if s == "" {
		// A key map entry may erase the key entirely; fall back like
		// an empty yield.
		s = w.config.ReplaceNoneKey
	}

	final := w.engine.slugify(s)
	if final == "" {
		// Slugify can strip everything (keys like "_"); keep the
		// mapped string so the key stays non-empty.
		final = s
	}
	return final, keyObj, nil
}

// rawKeyString returns the string form of an accepted raw key type:
// strings, booleans, integers, floats, byte slices and anything with a
// String method. nil maps to "" so the none-key substitution applies.
func rawKeyString(v any) (string, bool) {
	switch val := v.(type) {
	case nil:
		return "", true
	case string:
		return val, true
	case bool:
		return strconv.FormatBool(val), true
	case int:
		return strconv.FormatInt(int64(val), 10), true
	case int8:
		return strconv.FormatInt(int64(val), 10), true
	case int16:
		return strconv.FormatInt(int64(val), 10), true
	case int32:
		return strconv.FormatInt(int64(val), 10), true
	case int64:
		return strconv.FormatInt(val, 10), true
	case uint:
		return strconv.FormatUint(uint64(val), 10), true
	case uint8:
		return strconv.FormatUint(uint64(val), 10), true
	case uint16:
		return strconv.FormatUint(uint64(val), 10), true
	case uint32:
		return strconv.FormatUint(uint64(val), 10), true
	case uint64:
		return strconv.FormatUint(val, 10), true
	case float32:
		return strconv.FormatFloat(float64(val), 'g', -1, 32), true
	case float64:
		return strconv.FormatFloat(val, 'g', -1, 64), true
	case []byte:
		return string(val), true
	case cty.Value:
		if val.IsNull() {
			return "", true
		}
		if !val.IsKnown() {
			return "", false
		}
		switch val.Type() {
		case cty.String:
			return val.AsString(), true
		case cty.Bool:
			return strconv.FormatBool(val.True()), true
		case cty.Number:
			bf := val.AsBigFloat()
			if i, acc := bf.Int64(); acc == big.Exact {
				return strconv.FormatInt(i, 10), true
			}
			f, _ := bf.Float64()
			return strconv.FormatFloat(f, 'g', -1, 64), true
		}
		return "", false
	case fmt.Stringer:
		return val.String(), true
	}
	return "", false
}
