package configstore

import (
	"context"
	"fmt"

	"github.com/singbox-orbit/node-agent/internal/apperr"
)

func indexedPath(collection string) (path, entity string, err error) {
	info, ok := indexedCollections[collection]
	if !ok {
		return "", "", apperr.New(apperr.BadRequest, fmt.Sprintf("unknown indexed collection %q", collection))
	}
	return info.path, info.entity, nil
}

// ListIndexed returns every item in collection, in document order.
func (s *Store) ListIndexed(ctx context.Context, collection string) ([]Document, error) {
	path, _, err := indexedPath(collection)
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

// GetIndexed returns the item at index, or NotFound if out of range.
func (s *Store) GetIndexed(ctx context.Context, collection string, index int) (Document, error) {
	items, err := s.ListIndexed(ctx, collection)
	if err != nil {
		return nil, err
	}
	if index < 0 || index >= len(items) {
		return nil, apperr.New(apperr.NotFound, fmt.Sprintf("index %d out of range in %s", index, collection))
	}
	return items[index], nil
}

// CreateIndexed appends item to collection and returns its new index.
func (s *Store) CreateIndexed(ctx context.Context, collection string, item Document) (newIndex int, result Document, err error) {
	path, entity, err := indexedPath(collection)
	if err != nil {
		return 0, nil, err
	}

	created := deepClone(item).(Document)

	_, err = s.mutate(ctx, beforeCreate(entity), func(current Document) (Document, error) {
		arr := getArray(current, path)
		newIndex = len(arr)
		candidate := shallowCloneDoc(current)
		setPath(candidate, path, append(cloneSlice(arr), created))
		return candidate, nil
	})
	if err != nil {
		return 0, nil, err
	}
	return newIndex, created, nil
}

// ReplaceIndexed replaces the item at index. An out-of-range index is
// NotFound.
func (s *Store) ReplaceIndexed(ctx context.Context, collection string, index int, item Document) (Document, error) {
	path, entity, err := indexedPath(collection)
	if err != nil {
		return nil, err
	}

	replaced := deepClone(item).(Document)

	_, err = s.mutate(ctx, beforeUpdate(entity), func(current Document) (Document, error) {
		arr := getArray(current, path)
		if index < 0 || index >= len(arr) {
			return nil, apperr.New(apperr.NotFound, fmt.Sprintf("index %d out of range in %s", index, collection))
		}
		newArr := cloneSlice(arr)
		newArr[index] = replaced
		candidate := shallowCloneDoc(current)
		setPath(candidate, path, newArr)
		return candidate, nil
	})
	if err != nil {
		return nil, err
	}
	return replaced, nil
}

// DeleteIndexed removes the item at index. An out-of-range index is
// NotFound (indexed deletes, unlike tagged deletes, are a point operation
// on a fixed-shape array rather than a lookup by key).
func (s *Store) DeleteIndexed(ctx context.Context, collection string, index int) error {
	path, entity, err := indexedPath(collection)
	if err != nil {
		return err
	}

	_, err = s.mutate(ctx, beforeDelete(entity), func(current Document) (Document, error) {
		arr := getArray(current, path)
		if index < 0 || index >= len(arr) {
			return nil, apperr.New(apperr.NotFound, fmt.Sprintf("index %d out of range in %s", index, collection))
		}
		newArr := make([]interface{}, 0, len(arr)-1)
		newArr = append(newArr, arr[:index]...)
		newArr = append(newArr, arr[index+1:]...)
		candidate := shallowCloneDoc(current)
		setPath(candidate, path, newArr)
		return candidate, nil
	})
	return err
}

// ReorderIndexed splices the item at fromIndex out and reinserts it at
// toIndex. Either index out of range is BadRequest, per the spec's
// distinction between point-operation NotFound and reorder's BadRequest.
func (s *Store) ReorderIndexed(ctx context.Context, collection string, fromIndex, toIndex int) error {
	path, entity, err := indexedPath(collection)
	if err != nil {
		return err
	}

	_, err = s.mutate(ctx, beforeReorder(entity), func(current Document) (Document, error) {
		arr := getArray(current, path)
		if fromIndex < 0 || fromIndex >= len(arr) || toIndex < 0 || toIndex >= len(arr) {
			return nil, apperr.New(apperr.BadRequest, fmt.Sprintf("reorder index out of range in %s", collection))
		}
		newArr := cloneSlice(arr)
		item := newArr[fromIndex]
		newArr = append(newArr[:fromIndex], newArr[fromIndex+1:]...)
		newArr = append(newArr[:toIndex], append([]interface{}{item}, newArr[toIndex:]...)...)
		candidate := shallowCloneDoc(current)
		setPath(candidate, path, newArr)
		return candidate, nil
	})
	return err
}
