package configstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetPath_NestedAndMissing(t *testing.T) {
	doc := Document{"dns": Document{"servers": []interface{}{"a"}}}

	v, ok := getPath(doc, "dns.servers")
	assert.True(t, ok)
	assert.Equal(t, []interface{}{"a"}, v)

	_, ok = getPath(doc, "dns.missing")
	assert.False(t, ok)

	_, ok = getPath(doc, "route.rules")
	assert.False(t, ok)
}

func TestSetPath_CreatesIntermediateObjects(t *testing.T) {
	doc := Document{}
	setPath(doc, "dns.servers", []interface{}{"1.1.1.1"})

	v, ok := getPath(doc, "dns.servers")
	assert.True(t, ok)
	assert.Equal(t, []interface{}{"1.1.1.1"}, v)
}

func TestSetPath_OverwritesNonObjectIntermediate(t *testing.T) {
	doc := Document{"dns": "not-an-object"}
	setPath(doc, "dns.servers", []interface{}{"1.1.1.1"})

	v, ok := getPath(doc, "dns.servers")
	assert.True(t, ok)
	assert.Equal(t, []interface{}{"1.1.1.1"}, v)
}

func TestGetArray_AbsentReturnsNil(t *testing.T) {
	doc := Document{}
	assert.Nil(t, getArray(doc, "inbounds"))
}

func TestDeepMerge_RecursesIntoNestedObjects(t *testing.T) {
	target := Document{
		"log": Document{"level": "info", "output": "stdout"},
	}
	patch := Document{
		"log": Document{"level": "debug"},
	}

	merged := deepMerge(target, patch).(Document)
	logSection := merged["log"].(Document)
	assert.Equal(t, "debug", logSection["level"])
	assert.Equal(t, "stdout", logSection["output"])
}

func TestDeepMerge_ArraysReplaceWholesale(t *testing.T) {
	target := Document{"dns": Document{"servers": []interface{}{"a", "b"}}}
	patch := Document{"dns": Document{"servers": []interface{}{"c"}}}

	merged := deepMerge(target, patch).(Document)
	dns := merged["dns"].(Document)
	assert.Equal(t, []interface{}{"c"}, dns["servers"])
}

func TestDeepMerge_DoesNotMutateTarget(t *testing.T) {
	target := Document{"log": Document{"level": "info"}}
	patch := Document{"log": Document{"level": "debug"}}

	deepMerge(target, patch)

	assert.Equal(t, "info", target["log"].(Document)["level"])
}

func TestDeepClone_IsIndependentOfSource(t *testing.T) {
	original := Document{
		"inbounds": []interface{}{Document{"tag": "in-1"}},
	}
	clone := deepClone(original).(Document)

	clone["inbounds"].([]interface{})[0].(Document)["tag"] = "mutated"

	assert.Equal(t, "in-1", original["inbounds"].([]interface{})[0].(Document)["tag"])
}

func TestTagOf(t *testing.T) {
	tag, ok := tagOf(Document{"tag": "proxy-1"})
	assert.True(t, ok)
	assert.Equal(t, "proxy-1", tag)

	_, ok = tagOf(Document{})
	assert.False(t, ok)

	_, ok = tagOf("not-a-document")
	assert.False(t, ok)
}
