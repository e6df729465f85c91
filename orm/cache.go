package orm

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sort"

	"github.com/sirupsen/logrus"
)

// ErrCacheMiss is returned by Cache.Get when no value is cached.
var ErrCacheMiss = errors.New("cache miss")

// ID is a record identifier. Negative values are synthetic ids of records
// that are not stored yet.
type ID int64

// IsNew reports whether id belongs to a record that is not stored yet.
func (id ID) IsNew() bool { return id < 0 }

// Translations is the cached value of a translated field: one value per
// language code. A cached map is never modified in place; writes store a
// copy.
type Translations map[string]string

func (t Translations) clone() Translations {
	out := make(Translations, len(t))
	for k, v := range t {
		out[k] = v
	}
	return out
}

// DirtyValue is a pending write handed to a Flusher.
type DirtyValue struct {
	Field *Field
	ID    ID
	// Value is a Translations map for translated fields.
	Value any
}

// Flusher persists dirty values.
type Flusher interface {
	FlushValues(ctx context.Context, values []DirtyValue) error
}

// Invalidation selects cached values to drop: the given records of Field,
// or all of them when IDs is nil.
type Invalidation struct {
	Field *Field
	IDs   []ID
}

// Cache stores record field values per context partition and tracks the
// values that still have to be written back.
//
// A Cache is not safe for concurrent use.
type Cache struct {
	data    map[*Field]map[CacheKey]map[ID]any
	dirty   map[*Field]map[ID]struct{}
	patches map[*Field]map[ID][]ID
	lastNew ID
	log     logrus.FieldLogger
}

// NewCache returns an empty cache. A nil logger uses the logrus standard logger.
func NewCache(log logrus.FieldLogger) *Cache {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Cache{
		data:    map[*Field]map[CacheKey]map[ID]any{},
		dirty:   map[*Field]map[ID]struct{}{},
		patches: map[*Field]map[ID][]ID{},
		log:     log,
	}
}

// NewID allocates the synthetic id of a record that is not stored yet.
func (c *Cache) NewID() ID {
	c.lastNew--
	return c.lastNew
}

func (c *Cache) partition(f *Field, key CacheKey, create bool) map[ID]any {
	parts := c.data[f]
	if parts == nil {
		if !create {
			return nil
		}
		parts = map[CacheKey]map[ID]any{}
		c.data[f] = parts
	}
	slots := parts[key]
	if slots == nil && create {
		slots = map[ID]any{}
		parts[key] = slots
	}
	return slots
}

func (c *Cache) slots(env *Environment, f *Field, create bool) map[ID]any {
	return c.partition(f, env.CacheKey(f), create)
}

func (c *Cache) isDirty(f *Field, id ID) bool {
	_, ok := c.dirty[f][id]
	return ok
}

// violation logs a cache misuse with the current stack.
func (c *Cache) violation(msg string, f *Field, id ID) {
	c.log.WithFields(logrus.Fields{"field": f.String(), "id": id}).
		Errorf("%s\n%s", msg, debug.Stack())
}

func lookupLang(tr Translations, lang string) (string, bool) {
	if v, ok := tr[lang]; ok {
		return v, true
	}
	v, ok := tr[BaseLang]
	return v, ok
}

// Contains reports whether the value of f for id is cached in env.
func (c *Cache) Contains(env *Environment, f *Field, id ID) bool {
	_, err := c.Get(env, f, id)
	return err == nil
}

// Get returns the cached value of f for id. Translated fields return the
// value in the environment language, falling back to BaseLang, or nil when
// the field has no value at all.
func (c *Cache) Get(env *Environment, f *Field, id ID) (any, error) {
	v, ok := c.slots(env, f, false)[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s[%d]", ErrCacheMiss, f, id)
	}
	if !f.Translatable() || v == nil {
		return v, nil
	}
	s, ok := lookupLang(v.(Translations), env.Lang())
	if !ok {
		return nil, fmt.Errorf("%w: %s[%d] in %s", ErrCacheMiss, f, id, env.Lang())
	}
	return s, nil
}

// GetTranslations returns a copy of every cached language of a translated
// field, nil when the field has no value.
func (c *Cache) GetTranslations(env *Environment, f *Field, id ID) (Translations, error) {
	v, ok := c.slots(env, f, false)[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s[%d]", ErrCacheMiss, f, id)
	}
	tr, _ := v.(Translations)
	if tr == nil {
		return nil, nil
	}
	return tr.clone(), nil
}

// Set caches value for id. For translated fields a string sets the
// environment language, a Translations replaces all languages and nil
// clears the value.
//
// With dirty the value is marked for flushing; dirty values of
// context-dependent fields are mirrored in the neutral partition. A
// non-dirty Set on a dirty record is refused and logged.
func (c *Cache) Set(env *Environment, f *Field, id ID, value any, dirty bool) {
	if !dirty && c.isDirty(f, id) {
		c.violation("refusing to overwrite a dirty value without flushing it", f, id)
		return
	}
	slots := c.slots(env, f, true)
	if f.Translatable() {
		switch v := value.(type) {
		case nil:
			slots[id] = nil
		case Translations:
			slots[id] = v.clone()
		case string:
			tr, _ := slots[id].(Translations)
			tr = tr.clone()
			tr[env.Lang()] = v
			slots[id] = tr
		default:
			c.violation(fmt.Sprintf("unexpected %T for translated field", value), f, id)
			return
		}
	} else {
		slots[id] = value
	}
	if !dirty {
		return
	}
	if id.IsNew() || !f.Store {
		c.violation("only stored fields of stored records can be dirty", f, id)
		return
	}
	if c.dirty[f] == nil {
		c.dirty[f] = map[ID]struct{}{}
	}
	c.dirty[f][id] = struct{}{}
	if len(f.DependsContext) > 0 {
		v := slots[id]
		if tr, ok := v.(Translations); ok {
			v = tr.clone()
		}
		c.partition(f, neutralKey(f), true)[id] = v
	}
}

// Update sets values for several records, values[i] belonging to ids[i].
func (c *Cache) Update(env *Environment, f *Field, ids []ID, values []any, dirty bool) {
	for i, id := range ids {
		c.Set(env, f, id, values[i], dirty)
	}
}

// InsertMissing caches values for the records that have none yet. For
// translated fields, languages missing from an already cached value are
// filled in.
func (c *Cache) InsertMissing(env *Environment, f *Field, ids []ID, values []any) {
	slots := c.slots(env, f, true)
	for i, id := range ids {
		existing, present := slots[id]
		if !f.Translatable() {
			if !present {
				slots[id] = values[i]
			}
			continue
		}
		var incoming Translations
		switch v := values[i].(type) {
		case nil:
			if !present {
				slots[id] = nil
			}
			continue
		case Translations:
			incoming = v
		case string:
			incoming = Translations{env.Lang(): v}
		default:
			continue
		}
		if !present {
			slots[id] = incoming.clone()
			continue
		}
		if tr, ok := existing.(Translations); ok {
			tr = tr.clone()
			for lang, s := range incoming {
				if _, ok := tr[lang]; !ok {
					tr[lang] = s
				}
			}
			slots[id] = tr
		}
	}
}

// Remove drops the cached value of id. For translated fields only the
// environment language is dropped. Dirty values are kept and the attempt
// is logged.
func (c *Cache) Remove(env *Environment, f *Field, id ID) {
	if c.isDirty(f, id) {
		c.violation("refusing to remove a dirty value without flushing it", f, id)
		return
	}
	slots := c.slots(env, f, false)
	if slots == nil {
		return
	}
	if tr, ok := slots[id].(Translations); ok && f.Translatable() {
		tr = tr.clone()
		delete(tr, env.Lang())
		if len(tr) > 0 {
			slots[id] = tr
			return
		}
	}
	delete(slots, id)
}

// GetValues returns the cached values of ids in order.
func (c *Cache) GetValues(env *Environment, f *Field, ids []ID) ([]any, error) {
	out := make([]any, len(ids))
	for i, id := range ids {
		v, err := c.Get(env, f, id)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// GetMissingIDs returns the ids whose value of f is not cached in env.
func (c *Cache) GetMissingIDs(env *Environment, f *Field, ids []ID) []ID {
	var missing []ID
	for _, id := range ids {
		if !c.Contains(env, f, id) {
			missing = append(missing, id)
		}
	}
	return missing
}

// GetRecords returns the ids that have a value of f cached in env.
func (c *Cache) GetRecords(env *Environment, f *Field) []ID {
	var ids []ID
	for id := range c.slots(env, f, false) {
		if c.Contains(env, f, id) {
			ids = append(ids, id)
		}
	}
	sortIDs(ids)
	return ids
}

// Patch adds newID to the cached x2many value of each record. Records
// whose value is not cached yet get the patch applied by PatchAndSet.
func (c *Cache) Patch(env *Environment, f *Field, ids []ID, newID ID) error {
	if !newID.IsNew() {
		return fmt.Errorf("patching %s: id %d is not a new record", f, newID)
	}
	slots := c.slots(env, f, true)
	for _, id := range ids {
		if v, ok := slots[id]; ok {
			current, _ := v.([]ID)
			slots[id] = appendUnique(append([]ID(nil), current...), newID)
			continue
		}
		if c.patches[f] == nil {
			c.patches[f] = map[ID][]ID{}
		}
		c.patches[f][id] = appendUnique(c.patches[f][id], newID)
	}
	return nil
}

// PatchAndSet caches value for id after applying, once, the pending patches
// of id. It returns the value stored.
func (c *Cache) PatchAndSet(env *Environment, f *Field, id ID, value []ID) []ID {
	out := append([]ID(nil), value...)
	if pending, ok := c.patches[f][id]; ok {
		out = appendUnique(out, pending...)
		delete(c.patches[f], id)
	}
	c.Set(env, f, id, out, false)
	return out
}

func appendUnique(ids []ID, add ...ID) []ID {
	for _, a := range add {
		found := false
		for _, id := range ids {
			if id == a {
				found = true
				break
			}
		}
		if !found {
			ids = append(ids, a)
		}
	}
	return ids
}

// DirtyFields returns the fields with pending writes, ordered by name.
func (c *Cache) DirtyFields() []*Field {
	var fields []*Field
	for f, ids := range c.dirty {
		if len(ids) > 0 {
			fields = append(fields, f)
		}
	}
	sort.Slice(fields, func(i, j int) bool { return fields[i].String() < fields[j].String() })
	return fields
}

// DirtyRecords returns the records of f with pending writes.
func (c *Cache) DirtyRecords(f *Field) []ID {
	ids := make([]ID, 0, len(c.dirty[f]))
	for id := range c.dirty[f] {
		ids = append(ids, id)
	}
	sortIDs(ids)
	return ids
}

// HasDirty reports whether any write is pending.
func (c *Cache) HasDirty() bool {
	return len(c.DirtyFields()) > 0
}

// ClearDirtyField forgets the pending writes of f and returns the records
// concerned. It is meant to be called once the values have been persisted.
func (c *Cache) ClearDirtyField(f *Field) []ID {
	ids := c.DirtyRecords(f)
	delete(c.dirty, f)
	return ids
}

// Invalidate drops cached values in every context partition. Without
// arguments the whole cache is invalidated. Dirty values survive and the
// attempt is logged.
func (c *Cache) Invalidate(invs ...Invalidation) {
	if len(invs) == 0 {
		for f := range c.data {
			invs = append(invs, Invalidation{Field: f})
		}
	}
	for _, inv := range invs {
		c.invalidateField(inv.Field, inv.IDs)
	}
}

func (c *Cache) invalidateField(f *Field, ids []ID) {
	dirty := c.dirty[f]
	kept := ID(0)
	keptAny := false
	drop := func(slots map[ID]any, id ID) {
		if _, ok := dirty[id]; ok {
			kept, keptAny = id, true
			return
		}
		delete(slots, id)
	}
	for _, slots := range c.data[f] {
		if ids == nil {
			for id := range slots {
				drop(slots, id)
			}
			continue
		}
		for _, id := range ids {
			drop(slots, id)
		}
	}
	if keptAny {
		c.violation("invalidation skipped dirty values that were not flushed", f, kept)
	}
}

// Clear empties the cache, pending writes and patches included.
func (c *Cache) Clear() {
	if c.HasDirty() {
		c.log.Warn("clearing cache with unflushed values")
	}
	c.data = map[*Field]map[CacheKey]map[ID]any{}
	c.dirty = map[*Field]map[ID]struct{}{}
	c.patches = map[*Field]map[ID][]ID{}
}

// Flush hands every dirty value, read from the neutral partition, to fl
// and clears the dirty flags once fl succeeded.
func (c *Cache) Flush(ctx context.Context, fl Flusher) error {
	fields := c.DirtyFields()
	var values []DirtyValue
	for _, f := range fields {
		slots := c.partition(f, neutralKey(f), false)
		for _, id := range c.DirtyRecords(f) {
			v, ok := slots[id]
			if !ok {
				c.violation("dirty record has no cached value", f, id)
				continue
			}
			if tr, ok := v.(Translations); ok {
				v = tr.clone()
			}
			values = append(values, DirtyValue{Field: f, ID: id, Value: v})
		}
	}
	if len(values) == 0 {
		return nil
	}
	if err := fl.FlushValues(ctx, values); err != nil {
		return fmt.Errorf("flushing %d values: %w", len(values), err)
	}
	for _, f := range fields {
		c.ClearDirtyField(f)
	}
	return nil
}

func sortIDs(ids []ID) {
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
}
