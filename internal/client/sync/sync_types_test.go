package sync

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fileCtx(table, record, sysID, field string) *FileContext {
	return &FileContext{
		TableName:   table,
		RecordName:  record,
		SysID:       sysID,
		TargetField: field,
		FilePath:    srcPath(table, record, field+".js"),
	}
}

func recordsByKey(recs []*BuildableRecord) map[string][]string {
	out := make(map[string][]string, len(recs))
	for _, r := range recs {
		out[r.Key()] = r.FieldNames()
	}
	return out
}

func TestGroupAppFilesKeysOnTableAndSysID(t *testing.T) {
	ctxs := []*FileContext{
		fileCtx("widget", "Hello", "abc123", "script"),
		fileCtx("widget", "Hello (renamed)", "abc123", "template"),
		fileCtx("widget", "Other", "def456", "script"),
		fileCtx("sys_script_include", "Hello", "abc123", "script"),
	}

	recs := GroupAppFiles(ctxs)
	require.Len(t, recs, 3)

	assert.Equal(t, map[string][]string{
		"widget/abc123":             {"script", "template"},
		"widget/def456":             {"script"},
		"sys_script_include/abc123": {"script"},
	}, recordsByKey(recs))

	assert.Equal(t, "widget", recs[0].Table)
	assert.Equal(t, "script", recs[0].Primary)
	assert.Equal(t, "widget > Hello", recs[0].Summary())
}

func TestGroupAppFilesOrderIndependent(t *testing.T) {
	a := fileCtx("widget", "Hello", "abc123", "script")
	b := fileCtx("widget", "Hello", "abc123", "template")
	c := fileCtx("widget", "Other", "def456", "script")
	d := fileCtx("sys_script_include", "Util", "ghi789", "script")

	perms := [][]*FileContext{
		{a, b, c, d},
		{d, c, b, a},
		{b, d, a, c},
		{c, a, d, b},
	}

	want := recordsByKey(GroupAppFiles(perms[0]))
	for _, p := range perms[1:] {
		got := GroupAppFiles(p)
		assert.Equal(t, want, recordsByKey(got))
		for _, rec := range got {
			if rec.Key() == "widget/abc123" {
				assert.Equal(t, "script", rec.Primary)
			}
		}
	}

	// grouping the output again yields the same records
	var flattened []*FileContext
	for _, rec := range GroupAppFiles(perms[0]) {
		for _, f := range rec.FieldNames() {
			flattened = append(flattened, rec.Fields[f])
		}
	}
	assert.Equal(t, want, recordsByKey(GroupAppFiles(flattened)))
}

func TestGroupAppFilesEmpty(t *testing.T) {
	assert.Empty(t, GroupAppFiles(nil))
	assert.Empty(t, GroupAppFiles([]*FileContext{nil}))
}

func TestContextResolver(t *testing.T) {
	r := NewContextResolver(testManifest(), testSource, testBuild)

	fc, ok := r.Resolve(srcPath("widget", "Hello", "script.ts"))
	require.True(t, ok)
	assert.Equal(t, &FileContext{
		TableName:   "widget",
		RecordName:  "Hello",
		SysID:       "abc123",
		TargetField: "script",
		FilePath:    srcPath("widget", "Hello", "script.ts"),
		Ext:         "ts",
		Type:        "js",
		Version:     "v1",
	}, fc)

	fc, ok = r.Resolve(testBuild + "/widget/Hello/template.html")
	require.True(t, ok)
	assert.Equal(t, "html", fc.Type)

	for _, p := range []string{
		srcPath("widget", "Hello", "unknown.js"),
		srcPath("widget", "Nope", "script.js"),
		srcPath("nope", "Hello", "script.js"),
		srcPath("widget", "Hello"),
		srcPath("widget", "Hello", "nested", "script.js"),
		srcPath("widget", "Hello", ".js"),
		"/elsewhere/widget/Hello/script.js",
	} {
		_, ok := r.Resolve(p)
		assert.False(t, ok, p)
	}

	ctxs := r.ResolveAll([]string{srcPath("widget", "Hello", "script.js"), "/elsewhere/x"})
	assert.Len(t, ctxs, 1)
}
