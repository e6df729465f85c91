package orm

import (
	"fmt"
	"strings"
)

// Context carries the request parameters that select which cached value of
// a context-dependent field is visible: lang, company, uid and so on.
type Context map[string]any

// Lang returns the context language, or "" when unset.
func (c Context) Lang() string {
	s, _ := c["lang"].(string)
	return s
}

// With returns a copy of c with the given key/value pairs applied.
func (c Context) With(pairs ...any) Context {
	out := make(Context, len(c)+len(pairs)/2)
	for k, v := range c {
		out[k] = v
	}
	for i := 0; i+1 < len(pairs); i += 2 {
		out[fmt.Sprint(pairs[i])] = pairs[i+1]
	}
	return out
}

// CacheKey identifies the context partition of a field in the cache. Fields
// without context dependencies use the empty key.
type CacheKey string

const keySep = "\x1f"

func encodeKey(values []any) CacheKey {
	parts := make([]string, len(values))
	for i, v := range values {
		if v == nil {
			parts[i] = "-"
		} else {
			v = normalizeInt(v)
			parts[i] = fmt.Sprintf("%T:%v", v, v)
		}
	}
	return CacheKey(strings.Join(parts, keySep))
}

// normalizeInt widens integer values to int64 so that equal ids give equal
// keys whatever their Go type.
func normalizeInt(v any) any {
	switch n := v.(type) {
	case int:
		return int64(n)
	case int8:
		return int64(n)
	case int16:
		return int64(n)
	case int32:
		return int64(n)
	case uint:
		return int64(n)
	case uint8:
		return int64(n)
	case uint16:
		return int64(n)
	case uint32:
		return int64(n)
	case uint64:
		return int64(n)
	case ID:
		return int64(n)
	}
	return v
}

// neutralKey is the partition mirroring dirty values of a context-dependent
// field; every context value is nil.
func neutralKey(f *Field) CacheKey {
	if len(f.DependsContext) == 0 {
		return ""
	}
	return encodeKey(make([]any, len(f.DependsContext)))
}

// Environment binds a context to a registry and a cache. Environments derived
// with WithContext share the cache.
type Environment struct {
	Context  Context
	Registry *Registry
	Cache    *Cache
	keys     map[*Field]CacheKey
}

// NewEnvironment returns an environment. A nil cache gets a fresh one.
func NewEnvironment(reg *Registry, cache *Cache, ctx Context) *Environment {
	if cache == nil {
		cache = NewCache(nil)
	}
	if ctx == nil {
		ctx = Context{}
	}
	return &Environment{Context: ctx, Registry: reg, Cache: cache, keys: map[*Field]CacheKey{}}
}

// WithContext returns an environment sharing registry and cache whose
// context is extended with the given key/value pairs.
func (e *Environment) WithContext(pairs ...any) *Environment {
	return NewEnvironment(e.Registry, e.Cache, e.Context.With(pairs...))
}

// Lang returns the environment language, defaulting to BaseLang.
func (e *Environment) Lang() string {
	if l := e.Context.Lang(); l != "" {
		return l
	}
	return BaseLang
}

// CompanyID returns the current company: the first allowed company, else
// the "company" context key.
func (e *Environment) CompanyID() any {
	switch ids := e.Context["allowed_company_ids"].(type) {
	case []int64:
		if len(ids) > 0 {
			return ids[0]
		}
	case []int:
		if len(ids) > 0 {
			return int64(ids[0])
		}
	}
	return e.Context["company"]
}

// CacheKey returns the context partition of f for this environment.
func (e *Environment) CacheKey(f *Field) CacheKey {
	if len(f.DependsContext) == 0 {
		return ""
	}
	if k, ok := e.keys[f]; ok {
		return k
	}
	values := make([]any, len(f.DependsContext))
	for i, key := range f.DependsContext {
		values[i] = e.contextValue(key)
	}
	k := encodeKey(values)
	e.keys[f] = k
	return k
}

func (e *Environment) contextValue(key string) any {
	switch {
	case key == "company":
		return e.CompanyID()
	case key == "uid":
		su, _ := e.Context["su"].(bool)
		return fmt.Sprintf("%v/%t", e.Context["uid"], su)
	case key == "lang":
		if l := e.Context.Lang(); l != "" {
			return l
		}
		return nil
	case key == "active_test":
		if v, ok := e.Context["active_test"].(bool); ok {
			return v
		}
		return true
	case strings.HasPrefix(key, "bin_size"):
		v, _ := e.Context[key].(bool)
		return v
	}
	return e.Context[key]
}
