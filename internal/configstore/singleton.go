package configstore

import (
	"context"
	"fmt"

	"github.com/singbox-orbit/node-agent/internal/apperr"
)

func singletonExcluded(section string) ([]string, error) {
	excluded, ok := singletonSections[section]
	if !ok {
		return nil, apperr.New(apperr.BadRequest, fmt.Sprintf("unknown section %q", section))
	}
	return excluded, nil
}

// stripExcluded removes any key that belongs to a tagged/indexed collection
// from a section document, so a section-level write can never clobber an
// array those collection endpoints own.
func stripExcluded(section Document, excluded []string) Document {
	if len(excluded) == 0 {
		return section
	}
	out := shallowCloneDoc(section)
	for _, k := range excluded {
		delete(out, k)
	}
	return out
}

// restoreExcluded copies the excluded keys from the existing section (if
// any) onto candidate, overwriting whatever a caller may have supplied.
func restoreExcluded(candidate Document, existing Document, excluded []string) {
	for _, k := range excluded {
		if existing != nil {
			if v, ok := existing[k]; ok {
				candidate[k] = deepClone(v)
				continue
			}
		}
		delete(candidate, k)
	}
}

func sectionOf(doc Document, section string) Document {
	v, ok := doc[section]
	if !ok {
		return nil
	}
	m, _ := v.(Document)
	return m
}

// GetSection returns the named singleton section, or NotFound if absent.
func (s *Store) GetSection(ctx context.Context, section string) (Document, error) {
	if _, err := singletonExcluded(section); err != nil {
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

	existing := sectionOf(doc, section)
	if existing == nil {
		return nil, apperr.New(apperr.NotFound, fmt.Sprintf("section %q not set", section))
	}
	return deepClone(existing).(Document), nil
}

// SetSection replaces the named section wholesale, except for any keys
// owned by a tagged/indexed collection (e.g. route.rules), which are always
// carried over from the current document untouched.
func (s *Store) SetSection(ctx context.Context, section string, whole Document) (Document, error) {
	excluded, err := singletonExcluded(section)
	if err != nil {
		return nil, err
	}

	var result Document
	_, err = s.mutate(ctx, apiUpdateSection(section), func(current Document) (Document, error) {
		existing := sectionOf(current, section)
		newSection := stripExcluded(deepClone(whole).(Document), excluded)
		restoreExcluded(newSection, existing, excluded)

		candidate := shallowCloneDoc(current)
		setPath(candidate, section, newSection)
		result = newSection
		return candidate, nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// PatchSection deep-merges partial into the named section. Keys owned by a
// tagged/indexed collection are ignored even if present in partial.
func (s *Store) PatchSection(ctx context.Context, section string, partial Document) (Document, error) {
	excluded, err := singletonExcluded(section)
	if err != nil {
		return nil, err
	}

	var result Document
	_, err = s.mutate(ctx, apiPatchSection(section), func(current Document) (Document, error) {
		existing := sectionOf(current, section)
		cleanPartial := stripExcluded(partial, excluded)

		var merged Document
		if existing != nil {
			m, ok := deepMerge(existing, cleanPartial).(Document)
			if !ok {
				return nil, apperr.New(apperr.BadRequest, fmt.Sprintf("section %q is not an object", section))
			}
			merged = m
		} else {
			merged = deepClone(cleanPartial).(Document)
		}
		restoreExcluded(merged, existing, excluded)

		candidate := shallowCloneDoc(current)
		setPath(candidate, section, merged)
		result = merged
		return candidate, nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// DeleteSection removes the named section entirely. Most sections are
// expected to always be present in a valid configuration and the validator
// will reject the result if the section is mandatory; certificate is the
// one section callers routinely delete to fall back to the default ACME
// behavior. Deleting an already-absent section is a no-op, reported as
// false rather than an error.
func (s *Store) DeleteSection(ctx context.Context, section string) (bool, error) {
	if _, err := singletonExcluded(section); err != nil {
		return false, err
	}

	deleted := false
	_, err := s.mutate(ctx, beforeDelete(section), func(current Document) (Document, error) {
		if _, ok := current[section]; !ok {
			return current, errNoChange
		}
		candidate := shallowCloneDoc(current)
		delete(candidate, section)
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
