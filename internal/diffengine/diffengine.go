// Package diffengine implements structural comparison between two
// configuration documents, plus the export/import round-trip that carries
// a document across a host boundary. It treats a Document exactly as
// internal/configstore does: an untyped JSON object tree, compared and
// merged without any notion of what a given field means.
package diffengine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/singbox-orbit/node-agent/internal/apperr"
	"github.com/singbox-orbit/node-agent/internal/configstore"
	"github.com/singbox-orbit/node-agent/internal/metrics"
)

// Document is the same generic JSON-object map the Config Store operates
// on; diffing and merging only ever happen against that shape.
type Document = configstore.Document

// ChangeKind classifies one ChangeRecord.
type ChangeKind string

const (
	Added    ChangeKind = "added"
	Removed  ChangeKind = "removed"
	Modified ChangeKind = "modified"
)

// ChangeRecord is one entry in a Diff result: a dotted path from the
// document root plus the values on either side (only one side populated
// for Added/Removed).
type ChangeRecord struct {
	Path     string      `json:"path"`
	Kind     ChangeKind  `json:"kind"`
	OldValue interface{} `json:"oldValue,omitempty"`
	NewValue interface{} `json:"newValue,omitempty"`
}

// Diff recursively walks the union of keys at each object level of old and
// candidate, emitting added/removed entries for keys present on only one
// side. Arrays are compared by serialized JSON equality with no inner
// recursion, so a single modified record carries both arrays whole;
// objects present on both sides recurse; anything else is compared by
// strict (deep) equality.
func Diff(old, candidate Document) []ChangeRecord {
	var out []ChangeRecord
	diffObjects("", old, candidate, &out)
	return out
}

func diffObjects(prefix string, oldObj, newObj map[string]interface{}, out *[]ChangeRecord) {
	for _, key := range unionKeys(oldObj, newObj) {
		path := key
		if prefix != "" {
			path = prefix + "." + key
		}

		oldV, oldOK := oldObj[key]
		newV, newOK := newObj[key]
		switch {
		case oldOK && !newOK:
			*out = append(*out, ChangeRecord{Path: path, Kind: Removed, OldValue: oldV})
		case !oldOK && newOK:
			*out = append(*out, ChangeRecord{Path: path, Kind: Added, NewValue: newV})
		default:
			diffLeaf(path, oldV, newV, out)
		}
	}
}

func diffLeaf(path string, oldV, newV interface{}, out *[]ChangeRecord) {
	if _, ok := oldV.([]interface{}); ok {
		if _, ok := newV.([]interface{}); ok {
			if !jsonEqual(oldV, newV) {
				*out = append(*out, ChangeRecord{Path: path, Kind: Modified, OldValue: oldV, NewValue: newV})
			}
			return
		}
	}

	if oldObj, ok := oldV.(map[string]interface{}); ok {
		if newObj, ok := newV.(map[string]interface{}); ok {
			diffObjects(path, oldObj, newObj, out)
			return
		}
	}

	if !jsonEqual(oldV, newV) {
		*out = append(*out, ChangeRecord{Path: path, Kind: Modified, OldValue: oldV, NewValue: newV})
	}
}

// jsonEqual compares two values (array leaves and everything-else leaves
// alike) by strict equality. Both sides came from json.Unmarshal into
// interface{}, so direct == would panic on map or slice operands;
// marshaling both and comparing bytes gives the same strict-equality
// answer without that risk, and for arrays this is exactly the
// "serialized JSON equality" the diff algorithm calls for.
func jsonEqual(a, b interface{}) bool {
	aBytes, aErr := json.Marshal(a)
	bBytes, bErr := json.Marshal(b)
	if aErr != nil || bErr != nil {
		return false
	}
	return bytes.Equal(aBytes, bBytes)
}

func unionKeys(a, b map[string]interface{}) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	keys := make([]string, 0, len(a)+len(b))
	for k := range a {
		if _, ok := seen[k]; !ok {
			seen[k] = struct{}{}
			keys = append(keys, k)
		}
	}
	for k := range b {
		if _, ok := seen[k]; !ok {
			seen[k] = struct{}{}
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

// secretKeywords flags a path as carrying a sensitive value when any
// segment contains one of these substrings, case-insensitively. sing-box
// outbound/inbound/DNS objects carry fields like "password", "uuid",
// "private_key" and "auth_password"; this is the keyword half of the
// teacher's field-name redaction, adapted since the exact-match field list
// it also carried (database.password, webhook.authentication.api_key, ...)
// names fields from the teacher's own application config and has no
// sing-box analogue.
var secretKeywords = []string{
	"password", "secret", "api_key", "apikey", "token", "jwt",
	"private_key", "uuid", "auth_password", "psk",
}

func isSecretPath(path string) bool {
	lower := strings.ToLower(path)
	for _, kw := range secretKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// Sanitize returns a copy of records with OldValue/NewValue replaced by a
// redaction marker wherever the path looks secret-bearing, for callers
// that render or log a diff rather than act on it programmatically.
func Sanitize(records []ChangeRecord) []ChangeRecord {
	out := make([]ChangeRecord, len(records))
	for i, r := range records {
		if isSecretPath(r.Path) {
			if r.OldValue != nil {
				r.OldValue = "***REDACTED***"
			}
			if r.NewValue != nil {
				r.NewValue = "***REDACTED***"
			}
		}
		out[i] = r
	}
	return out
}

// Summary renders a short human-readable count of added/modified/removed
// entries, e.g. "2 added, 1 modified, 1 removed".
func Summary(records []ChangeRecord) string {
	if len(records) == 0 {
		return "no changes"
	}
	var added, modified, removed int
	for _, r := range records {
		switch r.Kind {
		case Added:
			added++
		case Modified:
			modified++
		case Removed:
			removed++
		}
	}
	var parts []string
	if added > 0 {
		parts = append(parts, fmt.Sprintf("%d added", added))
	}
	if modified > 0 {
		parts = append(parts, fmt.Sprintf("%d modified", modified))
	}
	if removed > 0 {
		parts = append(parts, fmt.Sprintf("%d removed", removed))
	}
	return strings.Join(parts, ", ")
}

// exportFormatVersion is the metadata "version" field Export stamps and
// Import checks candidate payloads against.
const exportFormatVersion = "1.0"

var versionPattern = regexp.MustCompile(`sing-box version (\S+)`)

// ExportMetadata accompanies an exported document.
type ExportMetadata struct {
	ExportedAt     time.Time `json:"exportedAt"`
	Version        string    `json:"version"`
	SingboxVersion *string   `json:"singboxVersion,omitempty"`
}

// ExportResult is the full payload Export produces and Import consumes.
type ExportResult struct {
	Config   Document       `json:"config"`
	Metadata ExportMetadata `json:"metadata"`
}

// ImportOptions controls Import's behavior. Zero value is not the spec's
// default; use DefaultImportOptions.
type ImportOptions struct {
	Validate     bool
	Merge        bool
	CreateBackup bool
}

// DefaultImportOptions matches spec.md's {validate=true, merge=false,
// createBackup=true}.
func DefaultImportOptions() ImportOptions {
	return ImportOptions{Validate: true, Merge: false, CreateBackup: true}
}

// ImportPayload is what a caller hands Import: the config to apply, plus
// optional metadata (typically a prior Export's metadata, round-tripped
// unmodified) used only to populate warnings.
type ImportPayload struct {
	Config   Document
	Metadata Document
}

// ImportResult is what Import returns on success.
type ImportResult struct {
	Success  bool     `json:"success"`
	Config   Document `json:"config"`
	Warnings []string `json:"warnings,omitempty"`
}

// Engine implements Export and Import against a Config Store, and exposes
// Diff as a pure function above for comparing any two documents (not
// necessarily ones the store currently holds, e.g. two backups).
type Engine struct {
	store      *configstore.Store
	binaryPath string
	metrics    *metrics.BackupMetrics

	versionOnce sync.Once
	version     *string
}

// New constructs an Engine. binaryPath is the same sing-box binary path
// the Validator and Supervisor use; Export's singboxVersion and Import's
// binary-version-mismatch warning both come from invoking it. m may be nil.
func New(store *configstore.Store, binaryPath string, m *metrics.BackupMetrics) *Engine {
	if binaryPath == "" {
		binaryPath = "sing-box"
	}
	return &Engine{store: store, binaryPath: binaryPath, metrics: m}
}

// Diff compares old against candidate and, when the Engine was
// constructed with metrics, records the count of each change kind.
func (e *Engine) Diff(old, candidate Document) []ChangeRecord {
	records := Diff(old, candidate)
	if e.metrics != nil {
		counts := make(map[ChangeKind]int)
		for _, r := range records {
			counts[r.Kind]++
		}
		for kind, count := range counts {
			e.metrics.ObserveDiff(string(kind), count)
		}
	}
	return records
}

// Export returns the current document plus metadata identifying when it
// was exported and which sing-box binary version produced it. Binary
// version lookup failure is not fatal: SingboxVersion is simply omitted.
func (e *Engine) Export(ctx context.Context) (ExportResult, error) {
	doc, err := e.store.Get(ctx)
	if err != nil {
		return ExportResult{}, err
	}

	meta := ExportMetadata{
		ExportedAt: time.Now(),
		Version:    exportFormatVersion,
	}
	if v := e.binaryVersion(ctx); v != "" {
		meta.SingboxVersion = &v
	}

	return ExportResult{Config: doc, Metadata: meta}, nil
}

// Import validates the payload's shape, computes warnings from its
// metadata, merges it onto the current document when requested, then
// writes it through the Config Store under opts' validate/backup
// discipline, auto-reloading exactly as any other store write does.
func (e *Engine) Import(ctx context.Context, payload ImportPayload, opts ImportOptions) (ImportResult, error) {
	if payload.Config == nil {
		return ImportResult{}, apperr.New(apperr.InvalidType, "import payload config must be an object")
	}

	var warnings []string
	if payload.Metadata != nil {
		if v, ok := payload.Metadata["version"].(string); ok && v != exportFormatVersion {
			warnings = append(warnings, fmt.Sprintf("metadata version %q does not match current export format %q", v, exportFormatVersion))
		}
		if sv, ok := payload.Metadata["singboxVersion"].(string); ok && sv != "" {
			if current := e.binaryVersion(ctx); current != "" && current != sv {
				warnings = append(warnings, fmt.Sprintf("running sing-box version %q differs from exported version %q", current, sv))
			}
		}
	}

	final := payload.Config
	if opts.Merge {
		current, err := e.store.Get(ctx)
		if err != nil && !apperr.Is(err, apperr.NotFound) {
			return ImportResult{}, err
		}
		if current != nil {
			final = deepMergeDocuments(current, payload.Config)
		}
	}

	written, err := e.store.Import(ctx, final, "before-import", configstore.ImportOptions{
		Validate:     opts.Validate,
		CreateBackup: opts.CreateBackup,
	})
	if err != nil {
		return ImportResult{}, err
	}

	return ImportResult{Success: true, Config: written, Warnings: warnings}, nil
}

// binaryVersion runs "<binary> version" once and caches the extracted
// version string for the Engine's lifetime; a failed lookup caches empty
// and is not retried, matching the Supervisor's own version-lookup
// caching behavior.
func (e *Engine) binaryVersion(ctx context.Context) string {
	e.versionOnce.Do(func() {
		runCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()

		out, err := exec.CommandContext(runCtx, e.binaryPath, "version").CombinedOutput()
		if err != nil {
			return
		}
		if m := versionPattern.FindStringSubmatch(string(out)); m != nil {
			v := m[1]
			e.version = &v
		}
	})
	if e.version == nil {
		return ""
	}
	return *e.version
}

// deepMergeDocuments deep-merges overlay onto base: objects recurse key by
// key, arrays and scalars in overlay replace the corresponding base value
// wholesale. This mirrors internal/configstore's own deepMerge exactly;
// it is reimplemented here rather than exported from configstore to keep
// that package's merge helper private to its own write path.
func deepMergeDocuments(base, overlay Document) Document {
	merged := deepMergeValue(map[string]interface{}(base), map[string]interface{}(overlay))
	return Document(merged.(map[string]interface{}))
}

func deepMergeValue(base, overlay interface{}) interface{} {
	baseObj, baseIsObj := base.(map[string]interface{})
	overlayObj, overlayIsObj := overlay.(map[string]interface{})
	if !baseIsObj || !overlayIsObj {
		return overlay
	}

	merged := make(map[string]interface{}, len(baseObj)+len(overlayObj))
	for k, v := range baseObj {
		merged[k] = v
	}
	for k, overlayV := range overlayObj {
		if baseV, ok := merged[k]; ok {
			merged[k] = deepMergeValue(baseV, overlayV)
		} else {
			merged[k] = overlayV
		}
	}
	return merged
}
