package configstore

import (
	"context"
	"fmt"

	"github.com/singbox-orbit/node-agent/internal/apperr"
)

func taggedPath(collection string) (path, entity string, err error) {
	info, ok := taggedCollections[collection]
	if !ok {
		return "", "", apperr.New(apperr.BadRequest, fmt.Sprintf("unknown tagged collection %q", collection))
	}
	return info.path, info.entity, nil
}

// ListTagged returns every item in collection.
func (s *Store) ListTagged(ctx context.Context, collection string) ([]Document, error) {
	path, _, err := taggedPath(collection)
	if err != nil {
		return nil, err
	}

	h, err := s.lock.AcquireRead(ctx)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "acquiring config store read lock", err)
	}
	defer h.Release()

	doc, err := s.readLocked(ctx)
	if err != nil {
		return nil, err
	}

	arr := getArray(doc, path)
	out := make([]Document, 0, len(arr))
	for _, item := range arr {
		if m, ok := item.(Document); ok {
			out = append(out, deepClone(m).(Document))
		}
	}
	return out, nil
}

// GetTaggedByTag returns the item whose "tag" field matches tag, or
// ok=false if no such item exists.
func (s *Store) GetTaggedByTag(ctx context.Context, collection, tag string) (item Document, ok bool, err error) {
	items, err := s.ListTagged(ctx, collection)
	if err != nil {
		return nil, false, err
	}
	for _, it := range items {
		if t, hasTag := tagOf(it); hasTag && t == tag {
			return it, true, nil
		}
	}
	return nil, false, nil
}

// CreateTagged appends item to collection. A duplicate tag is rejected
// with BadRequest.
func (s *Store) CreateTagged(ctx context.Context, collection string, item Document) (Document, error) {
	path, entity, err := taggedPath(collection)
	if err != nil {
		return nil, err
	}

	newTag, _ := tagOf(item)
	created := deepClone(item).(Document)

	_, err = s.mutate(ctx, beforeCreate(entity), func(current Document) (Document, error) {
		arr := getArray(current, path)
		for _, existing := range arr {
			if t, ok := tagOf(existing); ok && t == newTag {
				return nil, apperr.New(apperr.BadRequest, fmt.Sprintf("duplicate tag %q in %s", newTag, collection))
			}
		}
		candidate := shallowCloneDoc(current)
		setPath(candidate, path, append(cloneSlice(arr), created))
		return candidate, nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// ReplaceTagged replaces the whole item with the given tag. Renaming the
// tag to one already used by another item is rejected with BadRequest; a
// missing tag is NotFound.
func (s *Store) ReplaceTagged(ctx context.Context, collection, tag string, item Document) (Document, error) {
	path, entity, err := taggedPath(collection)
	if err != nil {
		return nil, err
	}

	newTag, _ := tagOf(item)
	replaced := deepClone(item).(Document)

	_, err = s.mutate(ctx, beforeUpdate(entity), func(current Document) (Document, error) {
		arr := getArray(current, path)
		idx := -1
		for i, existing := range arr {
			if t, ok := tagOf(existing); ok {
				if t == tag {
					idx = i
				} else if newTag != tag && t == newTag {
					return nil, apperr.New(apperr.BadRequest, fmt.Sprintf("tag %q already in use in %s", newTag, collection))
				}
			}
		}
		if idx < 0 {
			return nil, apperr.New(apperr.NotFound, fmt.Sprintf("%s %q not found", entity, tag))
		}
		newArr := cloneSlice(arr)
		newArr[idx] = replaced
		candidate := shallowCloneDoc(current)
		setPath(candidate, path, newArr)
		return candidate, nil
	})
	if err != nil {
		return nil, err
	}
	return replaced, nil
}

// PatchTagged shallow-merges partial's top-level keys into the item with
// the given tag. Renaming via a "tag" key in partial onto an already-used
// tag is rejected with BadRequest; a missing tag is NotFound.
func (s *Store) PatchTagged(ctx context.Context, collection, tag string, partial Document) (Document, error) {
	path, entity, err := taggedPath(collection)
	if err != nil {
		return nil, err
	}

	var patched Document

	_, err = s.mutate(ctx, beforePatch(entity), func(current Document) (Document, error) {
		arr := getArray(current, path)
		idx := -1
		for i, existing := range arr {
			if t, ok := tagOf(existing); ok && t == tag {
				idx = i
			}
		}
		if idx < 0 {
			return nil, apperr.New(apperr.NotFound, fmt.Sprintf("%s %q not found", entity, tag))
		}

		existing, _ := arr[idx].(Document)
		merged := shallowCloneDoc(existing)
		for k, v := range partial {
			merged[k] = deepClone(v)
		}
		if newTag, ok := tagOf(merged); ok && newTag != tag {
			for i, other := range arr {
				if i == idx {
					continue
				}
				if t, ok := tagOf(other); ok && t == newTag {
					return nil, apperr.New(apperr.BadRequest, fmt.Sprintf("tag %q already in use in %s", newTag, collection))
				}
			}
		}

		newArr := cloneSlice(arr)
		newArr[idx] = merged
		candidate := shallowCloneDoc(current)
		setPath(candidate, path, newArr)
		patched = merged
		return candidate, nil
	})
	if err != nil {
		return nil, err
	}
	return patched, nil
}

// DeleteTagged removes the item with the given tag. It reports false (not
// an error) when the tag is absent.
func (s *Store) DeleteTagged(ctx context.Context, collection, tag string) (bool, error) {
	path, entity, err := taggedPath(collection)
	if err != nil {
		return false, err
	}

	deleted := false
	_, err = s.mutate(ctx, beforeDelete(entity), func(current Document) (Document, error) {
		arr := getArray(current, path)
		idx := -1
		for i, existing := range arr {
			if t, ok := tagOf(existing); ok && t == tag {
				idx = i
				break
			}
		}
		if idx < 0 {
			return current, errNoChange
		}
		newArr := make([]interface{}, 0, len(arr)-1)
		newArr = append(newArr, arr[:idx]...)
		newArr = append(newArr, arr[idx+1:]...)
		candidate := shallowCloneDoc(current)
		setPath(candidate, path, newArr)
		deleted = true
		return candidate, nil
	})
	if err == errNoChange {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return deleted, nil
}
