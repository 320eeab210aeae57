// Package pathresolver walks a POSIX-shaped path down the Catalog tree,
// following directory and file hard links, and caches resolved records in a
// fixed-capacity ring keyed by path hash (spec.md §4.8).
package pathresolver

import (
	"strings"
	"unicode/utf16"

	"github.com/macfs/hfsplus/internal/catalog"
	"github.com/macfs/hfsplus/internal/hfserr"
	"github.com/macfs/hfsplus/internal/hfsunicode"
	"github.com/macfs/hfsplus/internal/volume"
)

// Result is a resolved path's record together with the catalog key that
// names it, and whether the lookup targeted the resource fork.
type Result struct {
	Record   *catalog.Record
	Key      volume.CatalogKey
	Resource bool
}

// defaultCacheCapacity is the ring cache's bucket count (spec.md §4.8).
const defaultCacheCapacity = 1024

// Resolver resolves paths against one open volume's Catalog, backed by a
// record cache.
type Resolver struct {
	cat   *catalog.Catalog
	cache *ringCache
}

// New builds a Resolver over cat, with a default-capacity record cache.
func New(cat *catalog.Catalog) *Resolver {
	return &Resolver{cat: cat, cache: newRingCache(defaultCacheCapacity)}
}

// NewWithCacheCapacity builds a Resolver whose ring cache has the given
// number of hash buckets (each a 4-entry round-robin ring).
func NewWithCacheCapacity(cat *catalog.Catalog, capacity int) *Resolver {
	return &Resolver{cat: cat, cache: newRingCache(capacity)}
}

// Resolve implements spec.md §4.8's resolution algorithm: cache lookup,
// element-by-element catalog descent following directory hard links, a
// trailing "rsrc" resource-fork suffix, and a final file-hardlink follow.
func (r *Resolver) Resolve(path string) (*Result, error) {
	if res, ok := r.cache.lookup(path); ok {
		return &res, nil
	}

	res, err := r.resolve(path)
	if err != nil {
		return nil, err
	}
	if !res.Resource {
		r.cache.insert(path, *res)
	}
	return res, nil
}

func (r *Resolver) resolve(path string) (*Result, error) {
	root, rootKey, err := r.cat.FindByCNID(volume.CNIDRootFolder)
	if err != nil {
		return nil, err
	}

	current := root
	currentKey := rootKey
	elements := splitPath(path)

	resource := false
	for i, raw := range elements {
		last := i == len(elements)-1

		if last && raw == "rsrc" {
			if !current.IsDir() {
				resource = true
				break
			}
			return nil, hfserr.New(hfserr.NotFound, "pathresolver.Resolve", path)
		}

		if !current.IsDir() {
			return nil, hfserr.New(hfserr.NotADirectory, "pathresolver.Resolve", path)
		}

		parentCNID := current.CNID()
		name := normalizeElement(raw)
		rec, err := r.cat.FindByKey(parentCNID, name)
		if err != nil {
			return nil, err
		}

		if rec.File != nil && rec.File.IsDirHardlink() {
			target, err := r.cat.ResolveDirHardlink(rec.File.Permissions.Special)
			if err != nil {
				return nil, err
			}
			rec = target
		}

		current = rec
		currentKey = volume.CatalogKey{ParentCNID: parentCNID, NameUTF16: name}
	}

	if current.File != nil && current.File.IsFileHardlink() {
		target, err := r.cat.ResolveFileHardlink(current.File.Permissions.Special)
		if err != nil {
			return nil, err
		}
		current = target
	}

	return &Result{Record: current, Key: currentKey, Resource: resource}, nil
}

// splitPath splits path on '/', dropping the leading empty component an
// absolute path produces and any empty component a repeated slash produces.
func splitPath(path string) []string {
	parts := strings.Split(path, "/")
	out := parts[:0]
	for _, p := range parts {
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}

// normalizeElement maps a path element's ':' back to the literal '/' it
// stands in for, applies HFS+'s gated NFD decomposition, and encodes the
// result as UTF-16 code units for a catalog key (spec.md §4.3, §4.8).
func normalizeElement(raw string) []uint16 {
	s := strings.ReplaceAll(raw, ":", "/")
	s = hfsunicode.Decompose(s)
	return utf16.Encode([]rune(s))
}
