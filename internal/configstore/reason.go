package configstore

import "fmt"

// taggedCollections maps a collection's API name to the dotted path where
// its array lives in the document, and to the singular entity name used in
// auto-generated backup reason tags.
var taggedCollections = map[string]struct {
	path   string
	entity string
}{
	"inbounds":       {"inbounds", "inbound"},
	"outbounds":      {"outbounds", "outbound"},
	"endpoints":      {"endpoints", "endpoint"},
	"services":       {"services", "service"},
	"dns.servers":    {"dns.servers", "dns-server"},
	"route.rule_set": {"route.rule_set", "rule-set"},
}

// indexedCollections maps a collection's API name to its dotted path and
// entity name, the same way taggedCollections does for tag-keyed arrays.
var indexedCollections = map[string]struct {
	path   string
	entity string
}{
	"route.rules": {"route.rules", "rule"},
	"dns.rules":   {"dns.rules", "dns-rule"},
}

// singletonSections maps a section name to the set of its own keys that
// are actually arrays owned by a tagged/indexed collection and must be
// left untouched by the section's own get/set/patch/delete.
var singletonSections = map[string][]string{
	"log":          nil,
	"ntp":          nil,
	"route":        {"rules", "rule_set"},
	"dns":          {"servers", "rules"},
	"certificate":  nil,
	"experimental": nil,
}

func beforeCreate(entity string) string  { return fmt.Sprintf("before-create-%s", entity) }
func beforeUpdate(entity string) string  { return fmt.Sprintf("before-update-%s", entity) }
func beforePatch(entity string) string   { return fmt.Sprintf("before-patch-%s", entity) }
func beforeDelete(entity string) string  { return fmt.Sprintf("before-delete-%s", entity) }
func beforeReorder(entity string) string { return fmt.Sprintf("before-reorder-%s", entity) }
func apiUpdateSection(section string) string { return fmt.Sprintf("api-update-%s", section) }
func apiPatchSection(section string) string  { return fmt.Sprintf("api-patch-%s", section) }
