package orm

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
)

func newTestEnv(t *testing.T, ctx Context) (*Environment, *test.Hook) {
	t.Helper()
	log, hook := test.NewNullLogger()
	return NewEnvironment(NewRegistry(), NewCache(log), ctx), hook
}

func mustGet(t *testing.T, env *Environment, f *Field, id ID) any {
	t.Helper()
	v, err := env.Cache.Get(env, f, id)
	if err != nil {
		t.Fatalf("Get(%s, %d) in %v: %v", f, id, env.Context, err)
	}
	return v
}

type recordingFlusher struct {
	values []DirtyValue
	err    error
}

func (r *recordingFlusher) FlushValues(_ context.Context, values []DirtyValue) error {
	if r.err != nil {
		return r.err
	}
	r.values = append(r.values, values...)
	return nil
}

func TestCacheMiss(t *testing.T) {
	env, _ := newTestEnv(t, nil)
	f := &Field{Model: "res.partner", Name: "name", Store: true}
	if _, err := env.Cache.Get(env, f, 1); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("Get on empty cache = %v, want ErrCacheMiss", err)
	}
	if env.Cache.Contains(env, f, 1) {
		t.Fatal("Contains on empty cache")
	}
}

func TestContextDependentIsolation(t *testing.T) {
	f := &Field{Model: "res.partner", Name: "display_name", DependsContext: []string{"lang"}}
	fr, _ := newTestEnv(t, Context{"lang": "fr_FR"})
	de := fr.WithContext("lang", "de_DE")

	fr.Cache.Set(fr, f, 7, "Partenaire", false)
	de.Cache.Set(de, f, 7, "Partner (de)", false)
	if got := mustGet(t, fr, f, 7); got != "Partenaire" {
		t.Fatalf("fr value = %v", got)
	}
	if got := mustGet(t, de, f, 7); got != "Partner (de)" {
		t.Fatalf("de value = %v", got)
	}

	fr.Cache.Remove(fr, f, 7)
	if fr.Cache.Contains(fr, f, 7) {
		t.Fatal("fr value should be gone")
	}
	if got := mustGet(t, de, f, 7); got != "Partner (de)" {
		t.Fatalf("de value after fr removal = %v", got)
	}
}

func TestTranslatedFieldLanguages(t *testing.T) {
	f := &Field{Model: "res.partner", Name: "name", Translate: PlainText{}, Store: true}
	en, _ := newTestEnv(t, nil)
	fr := en.WithContext("lang", "fr_FR")
	de := en.WithContext("lang", "de_DE")
	nl := en.WithContext("lang", "nl_NL")

	en.Cache.InsertMissing(en, f, []ID{1}, []any{Translations{"en_US": "Partner", "de_DE": "Partner (de)"}})
	fr.Cache.Set(fr, f, 1, "Partenaire", false)

	if got := mustGet(t, fr, f, 1); got != "Partenaire" {
		t.Fatalf("fr = %v", got)
	}
	if got := mustGet(t, de, f, 1); got != "Partner (de)" {
		t.Fatalf("de = %v", got)
	}
	if got := mustGet(t, nl, f, 1); got != "Partner" {
		t.Fatalf("nl should fall back to en_US, got %v", got)
	}

	fr.Cache.Remove(fr, f, 1)
	if got := mustGet(t, de, f, 1); got != "Partner (de)" {
		t.Fatalf("de after fr removal = %v", got)
	}
	if got := mustGet(t, fr, f, 1); got != "Partner" {
		t.Fatalf("fr after removal should fall back, got %v", got)
	}

	en.Cache.InsertMissing(en, f, []ID{1}, []any{Translations{"en_US": "Other", "fr_FR": "Autre"}})
	if got := mustGet(t, en, f, 1); got != "Partner" {
		t.Fatalf("InsertMissing overwrote en_US: %v", got)
	}
	if got := mustGet(t, fr, f, 1); got != "Autre" {
		t.Fatalf("InsertMissing did not fill fr_FR: %v", got)
	}

	en.Cache.Set(en, f, 2, nil, false)
	if v := mustGet(t, fr, f, 2); v != nil {
		t.Fatalf("nil translated value = %v", v)
	}
}

func TestCacheKeyOrderAndDefaults(t *testing.T) {
	env, _ := newTestEnv(t, Context{"lang": "fr_FR", "allowed_company_ids": []int64{3, 1}})
	f := &Field{Model: "m", Name: "x", DependsContext: []string{"company", "lang", "active_test"}}
	g := &Field{Model: "m", Name: "y", DependsContext: []string{"lang", "company", "active_test"}}

	k1 := env.CacheKey(f)
	if k1 != env.CacheKey(f) {
		t.Fatal("cache key not stable")
	}
	if k1 == env.CacheKey(g) {
		t.Fatal("cache key should follow declared order")
	}
	parts := strings.Split(string(k1), keySep)
	if len(parts) != 3 || parts[0] != "int64:3" || parts[1] != "string:fr_FR" || parts[2] != "bool:true" {
		t.Fatalf("cache key parts = %q", parts)
	}
	plain := &Field{Model: "m", Name: "z"}
	if env.CacheKey(plain) != "" {
		t.Fatal("context-free field should use the empty key")
	}
	other := env.WithContext("allowed_company_ids", []int64{1})
	if other.CacheKey(f) == k1 {
		t.Fatal("company change should change the key")
	}
}

func TestCacheKeyIntegerTypes(t *testing.T) {
	f := &Field{Model: "m", Name: "x", DependsContext: []string{"company", "uid"}}
	base, _ := newTestEnv(t, Context{"uid": 2})

	keys := map[string]CacheKey{
		"allowed []int64": base.WithContext("allowed_company_ids", []int64{1}).CacheKey(f),
		"allowed []int":   base.WithContext("allowed_company_ids", []int{1}).CacheKey(f),
		"company int":     base.WithContext("company", 1).CacheKey(f),
		"company int32":   base.WithContext("company", int32(1)).CacheKey(f),
		"company ID":      base.WithContext("company", ID(1)).CacheKey(f),
	}
	want := keys["allowed []int64"]
	for name, k := range keys {
		if k != want {
			t.Fatalf("%s: key %q, want %q", name, k, want)
		}
	}
	if base.WithContext("company", 2).CacheKey(f) == want {
		t.Fatal("another company should change the key")
	}
}

func TestDirtyMirrorAndFlush(t *testing.T) {
	f := &Field{Model: "res.partner", Name: "ref", Store: true, DependsContext: []string{"company"}}
	env, hook := newTestEnv(t, Context{"company": int64(1)})

	env.Cache.Set(env, f, 5, "A-1", true)
	if got := env.Cache.DirtyRecords(f); !reflect.DeepEqual(got, []ID{5}) {
		t.Fatalf("DirtyRecords = %v", got)
	}
	neutral := env.Cache.partition(f, neutralKey(f), false)
	if neutral[5] != "A-1" {
		t.Fatalf("neutral mirror = %v", neutral[5])
	}

	failing := &recordingFlusher{err: errors.New("db down")}
	if err := env.Cache.Flush(context.Background(), failing); err == nil {
		t.Fatal("expected flush error")
	}
	if !env.Cache.HasDirty() {
		t.Fatal("dirty flags must survive a failed flush")
	}

	fl := &recordingFlusher{}
	if err := env.Cache.Flush(context.Background(), fl); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if len(fl.values) != 1 || fl.values[0].ID != 5 || fl.values[0].Value != "A-1" || fl.values[0].Field != f {
		t.Fatalf("flushed values = %+v", fl.values)
	}
	if env.Cache.HasDirty() {
		t.Fatal("dirty flags should be cleared after flush")
	}
	if len(hook.Entries) != 0 {
		t.Fatalf("unexpected log entries: %v", hook.Entries)
	}
}

func TestFlushedMirrorStaysIsolated(t *testing.T) {
	f := &Field{Model: "res.partner", Name: "name", Translate: PlainText{}, Store: true, DependsContext: []string{"company"}}
	fr, hook := newTestEnv(t, Context{"lang": "fr_FR", "company": int64(1)})
	de := fr.WithContext("lang", "de_DE")

	fr.Cache.Set(fr, f, 1, "Société", true)
	if err := fr.Cache.Flush(context.Background(), &recordingFlusher{}); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	want := Translations{"fr_FR": "Société"}
	neutral := func() any { return fr.Cache.partition(f, neutralKey(f), false)[1] }

	de.Cache.Set(de, f, 1, "Firma", false)
	if got := neutral(); !reflect.DeepEqual(got, want) {
		t.Fatalf("neutral partition after de Set = %v, want %v", got, want)
	}
	if got := mustGet(t, de, f, 1); got != "Firma" {
		t.Fatalf("de value = %v", got)
	}

	fr.Cache.Remove(fr, f, 1)
	if got := neutral(); !reflect.DeepEqual(got, want) {
		t.Fatalf("neutral partition after Remove = %v, want %v", got, want)
	}
	if got := mustGet(t, de, f, 1); got != "Firma" {
		t.Fatalf("de value after fr removal = %v", got)
	}

	fr.Cache.InsertMissing(fr, f, []ID{1}, []any{Translations{"nl_NL": "Bedrijf"}})
	if got := neutral(); !reflect.DeepEqual(got, want) {
		t.Fatalf("neutral partition after InsertMissing = %v, want %v", got, want)
	}
	if len(hook.Entries) != 0 {
		t.Fatalf("unexpected log entries: %v", hook.Entries)
	}
}

func TestDirtyViolationsAreLogged(t *testing.T) {
	f := &Field{Model: "res.partner", Name: "name", Store: true}
	env, hook := newTestEnv(t, nil)

	env.Cache.Set(env, f, 1, "pending", true)

	env.Cache.Set(env, f, 1, "stale", false)
	if got := mustGet(t, env, f, 1); got != "pending" {
		t.Fatalf("non-dirty set overwrote dirty value: %v", got)
	}
	if hook.LastEntry() == nil || hook.LastEntry().Level != logrus.ErrorLevel {
		t.Fatal("expected an error log for the overwrite")
	}
	if !strings.Contains(hook.LastEntry().Message, "goroutine") {
		t.Fatal("violation log should carry a stack trace")
	}

	hook.Reset()
	env.Cache.Remove(env, f, 1)
	if !env.Cache.Contains(env, f, 1) || len(hook.Entries) != 1 {
		t.Fatalf("Remove of dirty value: contains=%v logs=%d", env.Cache.Contains(env, f, 1), len(hook.Entries))
	}

	hook.Reset()
	env.Cache.Set(env, f, 2, "clean", false)
	env.Cache.Invalidate()
	if !env.Cache.Contains(env, f, 1) {
		t.Fatal("invalidate dropped a dirty value")
	}
	if env.Cache.Contains(env, f, 2) {
		t.Fatal("invalidate kept a clean value")
	}
	if len(hook.Entries) != 1 {
		t.Fatalf("expected one violation log, got %d", len(hook.Entries))
	}

	env.Cache.Clear()
	if env.Cache.Contains(env, f, 1) || env.Cache.HasDirty() {
		t.Fatal("Clear should drop everything")
	}
}

func TestDirtyNewRecordRefused(t *testing.T) {
	f := &Field{Model: "res.partner", Name: "name", Store: true}
	env, hook := newTestEnv(t, nil)
	id := env.Cache.NewID()
	if !id.IsNew() {
		t.Fatalf("NewID = %d, want a new id", id)
	}
	env.Cache.Set(env, f, id, "draft", true)
	if env.Cache.HasDirty() {
		t.Fatal("new records cannot be dirty")
	}
	if got := mustGet(t, env, f, id); got != "draft" {
		t.Fatalf("value of new record = %v", got)
	}
	if len(hook.Entries) != 1 {
		t.Fatalf("expected one violation log, got %d", len(hook.Entries))
	}
}

func TestInvalidateSelectedRecords(t *testing.T) {
	f := &Field{Model: "m", Name: "x", DependsContext: []string{"lang"}}
	fr, _ := newTestEnv(t, Context{"lang": "fr_FR"})
	de := fr.WithContext("lang", "de_DE")
	fr.Cache.Update(fr, f, []ID{1, 2}, []any{"a", "b"}, false)
	de.Cache.Update(de, f, []ID{1, 2}, []any{"c", "d"}, false)

	fr.Cache.Invalidate(Invalidation{Field: f, IDs: []ID{1}})
	if got := fr.Cache.GetMissingIDs(fr, f, []ID{1, 2, 3}); !reflect.DeepEqual(got, []ID{1, 3}) {
		t.Fatalf("fr missing = %v", got)
	}
	if got := de.Cache.GetRecords(de, f); !reflect.DeepEqual(got, []ID{2}) {
		t.Fatalf("de records = %v", got)
	}
	vals, err := fr.Cache.GetValues(fr, f, []ID{2})
	if err != nil || !reflect.DeepEqual(vals, []any{"b"}) {
		t.Fatalf("GetValues = %v, %v", vals, err)
	}
}

func TestPatchNewRecords(t *testing.T) {
	f := &Field{Model: "sale.order", Name: "line_ids", Type: "one2many"}
	env, _ := newTestEnv(t, nil)
	order := env.Cache.NewID()
	line := env.Cache.NewID()
	line2 := env.Cache.NewID()

	if err := env.Cache.Patch(env, f, []ID{order}, 42); err == nil {
		t.Fatal("patching with a stored id should fail")
	}
	if err := env.Cache.Patch(env, f, []ID{order}, line); err != nil {
		t.Fatalf("Patch: %v", err)
	}
	got := env.Cache.PatchAndSet(env, f, order, []ID{line2})
	if !reflect.DeepEqual(got, []ID{line2, line}) {
		t.Fatalf("PatchAndSet = %v", got)
	}
	again := env.Cache.PatchAndSet(env, f, order, nil)
	if len(again) != 0 {
		t.Fatalf("patch applied twice: %v", again)
	}

	if err := env.Cache.Patch(env, f, []ID{order}, line2); err != nil {
		t.Fatalf("Patch cached: %v", err)
	}
	if err := env.Cache.Patch(env, f, []ID{order}, line); err != nil {
		t.Fatalf("Patch cached: %v", err)
	}
	if v := mustGet(t, env, f, order); !reflect.DeepEqual(v, []ID{line2, line}) {
		t.Fatalf("patched cached value = %v", v)
	}
}
