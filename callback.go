package groupby

import (
	"context"
	"strings"
)

// GroupingFunc inspects one field occurrence and emits zero or more
// raw key objects for it through the Emitter. Emitting nothing means
// the occurrence belongs to no group. Returning an error aborts the
// watcher's build atomically.
type GroupingFunc func(ctx context.Context, args CallbackArgs, emit *Emitter) error

// Emitter hands raw key objects from a grouping callback to the
// aggregation. Each Emit resolves the key immediately and returns the
// in-progress group, so the callback can read the final key (and
// rewrite source content with it) before the group's children or
// pagination exist.
type Emitter struct {
	w    *Watcher
	agg  *aggregate
	args CallbackArgs
}

// Emit resolves raw into its final group key and adds the occurrence's
// record to that group, with the canonical key object as the child
// payload. When a key_obj_fn fans the object out into several keys,
// the handle of the first group is returned; emitting an empty list
// returns nil.
func (em *Emitter) Emit(raw any) (*GroupBySource, error) {
	return em.emit(raw, nil, false)
}

// EmitExtra is Emit with an explicit child payload instead of the
// canonical key object.
func (em *Emitter) EmitExtra(raw, extra any) (*GroupBySource, error) {
	return em.emit(raw, extra, true)
}

func (em *Emitter) emit(raw, extra any, withExtra bool) (*GroupBySource, error) {
	objs, err := em.w.transformRaw(raw, em.args)
	if err != nil {
		return nil, err
	}

	var first *GroupBySource
	for _, obj := range objs {
		key, keyObj, err := em.w.finalizeKey(obj)
		if err != nil {
			return nil, err
		}
		payload := keyObj
		if withExtra {
			payload = extra
		}
		gs := em.agg.add(key, keyObj, em.args, payload)
		if first == nil {
			first = gs
		}
	}
	return first, nil
}

// splitGrouping is the built-in grouping used when a watcher has no
// callback of its own: strings are split on the configured delimiter
// (or taken whole when it is empty), string slices contribute each
// element, and nil contributes nothing. Values the key resolver cannot
// handle are skipped rather than failing the build, which keeps
// config-file watchers robust against odd field values.
func splitGrouping(split string) GroupingFunc {
	return func(_ context.Context, args CallbackArgs, emit *Emitter) error {
		return emitSplit(args.Field, split, emit)
	}
}

func emitSplit(v any, split string, emit *Emitter) error {
	switch val := v.(type) {
	case nil:
		return nil
	case string:
		if split == "" {
			if s := strings.TrimSpace(val); s != "" {
				_, err := emit.Emit(s)
				return err
			}
			return nil
		}
		for _, part := range strings.Split(val, split) {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			if _, err := emit.Emit(part); err != nil {
				return err
			}
		}
		return nil
	case []string:
		for _, el := range val {
			if err := emitSplit(el, split, emit); err != nil {
				return err
			}
		}
		return nil
	case []any:
		for _, el := range val {
			if err := emitSplit(el, split, emit); err != nil {
				return err
			}
		}
		return nil
	default:
		if _, ok := rawKeyString(v); ok {
			_, err := emit.Emit(v)
			return err
		}
		return nil
	}
}
