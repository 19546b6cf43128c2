package snapi

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFilterEncode(t *testing.T) {
	f := Where(Eq("state", "current"), In("name", "a_1", "b_2"), NotEq("action", "DELETE"))
	assert.Equal(t, "state=current^nameINa_1,b_2^action!=DELETE", f.Encode())

	f = f.And(Encoded("active=true"), Encoded("  "))
	assert.Equal(t, "state=current^nameINa_1,b_2^action!=DELETE^active=true", f.Encode())

	assert.Empty(t, Filter(nil).Encode())
}

func TestFilterAndDoesNotAlias(t *testing.T) {
	base := make(Filter, 0, 4)
	base = append(base, Eq("a", "1"))
	x := base.And(Eq("b", "2"))
	y := base.And(Eq("c", "3"))
	assert.Equal(t, "a=1^b=2", x.Encode())
	assert.Equal(t, "a=1^c=3", y.Encode())
}

func TestFilterMatch(t *testing.T) {
	row := Row{"state": "current", "name": "widget_abc", "action": "INSERT_OR_UPDATE"}

	assert.True(t, Where(Eq("state", "current")).Match(row))
	assert.True(t, Where(In("name", "x", "widget_abc")).Match(row))
	assert.True(t, Where(NotEq("action", "DELETE")).Match(row))
	assert.False(t, Where(Eq("state", "previous")).Match(row))
	assert.False(t, Where(In("name", "x", "y")).Match(row))
	assert.False(t, Where(Eq("state", "current"), NotEq("action", "INSERT_OR_UPDATE")).Match(row))
}

func TestRowDisplay(t *testing.T) {
	row := Row{"name": "raw", "name.display": "Pretty", "sys_id": "abc"}
	assert.Equal(t, "Pretty", row.Display("name"))
	assert.Equal(t, "abc", row.Display("sys_id"))
	assert.Empty(t, row.Display("missing"))
}

func TestResponseOK(t *testing.T) {
	assert.True(t, (&Response{Status: 200}).OK())
	assert.True(t, (&Response{Status: 299}).OK())
	assert.False(t, (&Response{Status: 300}).OK())
	assert.False(t, (&Response{Status: 404}).OK())
	assert.False(t, (*Response)(nil).OK())
}

func TestSplitVersionName(t *testing.T) {
	table, id, ok := SplitVersionName("sys_script_include_0123abcd")
	assert.True(t, ok)
	assert.Equal(t, "sys_script_include", table)
	assert.Equal(t, "0123abcd", id)

	_, _, ok = SplitVersionName("noseparator")
	assert.False(t, ok)
	_, _, ok = SplitVersionName("trailing_")
	assert.False(t, ok)
}

func TestConfig(t *testing.T) {
	cfg := &Config{}
	assert.ErrorIs(t, cfg.Validate(), ErrNoInstance)

	cfg.Instance = "dev1234.service-now.com/"
	assert.ErrorIs(t, cfg.Validate(), ErrNoCredentials)

	cfg.User, cfg.Password = "admin", "secret"
	assert.NoError(t, cfg.Validate())
	assert.Equal(t, "https://dev1234.service-now.com", cfg.BaseURL())

	cfg.Instance = "http://localhost:8080"
	assert.Equal(t, "http://localhost:8080", cfg.BaseURL())
}
