package record

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testJSON = `{
	"id": "t1",
	"collectionName": "tests",
	"name": "Lipid Profile",
	"price": 899.5,
	"top_level_test": true,
	"category": "c1",
	"included_tests": ["t2", "t3"],
	"meta": {"lab": {"code": "LP-01"}},
	"expand": {
		"category": {"id": "c1", "collectionName": "categories", "name": "Cardiac"},
		"included_tests": [
			{"id": "t2", "name": "HDL"},
			{"id": "t3", "name": "LDL"}
		]
	}
}`

func TestUnmarshal_ExpandShapes(t *testing.T) {
	var rec Record
	require.NoError(t, json.Unmarshal([]byte(testJSON), &rec))

	assert.Equal(t, "t1", rec.ID)
	assert.Equal(t, "tests", rec.Collection)
	assert.Equal(t, "Lipid Profile", rec.String("name"))
	assert.Equal(t, "899.5", rec.String("price"))
	assert.True(t, rec.Bool("top_level_test"))
	assert.Equal(t, []string{"t2", "t3"}, rec.Strings("included_tests"))

	cat, ok := rec.One("category")
	require.True(t, ok)
	assert.Equal(t, "Cardiac", cat.String("name"))
	assert.Len(t, rec.Many("included_tests"), 2)
	_, hasExpandAttr := rec.Attrs["expand"]
	assert.False(t, hasExpandAttr)
}

func TestLookup_Paths(t *testing.T) {
	var rec Record
	require.NoError(t, json.Unmarshal([]byte(testJSON), &rec))

	cases := []struct {
		path string
		want any
		ok   bool
	}{
		{"name", "Lipid Profile", true},
		{"id", "t1", true},
		{"meta.lab.code", "LP-01", true},
		{"category.name", "Cardiac", true},
		{"expand.category.name", "Cardiac", true},
		{"category", "c1", true},
		{"included_tests.name", "HDL", true},
		{"meta.missing", nil, false},
		{"nope", nil, false},
		{"", nil, false},
	}
	for _, tc := range cases {
		got, ok := rec.Lookup(tc.path)
		assert.Equal(t, tc.ok, ok, tc.path)
		assert.Equal(t, tc.want, got, tc.path)
	}
}

func TestStrings_ScalarAndEmpty(t *testing.T) {
	rec := New("team", "m1")
	rec.Attrs["one"] = "pathology"
	rec.Attrs["none"] = ""
	rec.Attrs["mixed"] = []any{"a", "", "b"}

	assert.Equal(t, []string{"pathology"}, rec.Strings("one"))
	assert.Nil(t, rec.Strings("none"))
	assert.Equal(t, []string{"a", "b"}, rec.Strings("mixed"))
	assert.Nil(t, rec.Strings("absent"))
}

func TestMarshal_RoundTrip(t *testing.T) {
	rec := New("carts", "k1")
	rec.Attrs["quantity"] = float64(2)
	user := New("users", "u1")
	user.Attrs["email"] = "a@lab.test"
	rec.SetExpand("user", user)

	data, err := json.Marshal(rec)
	require.NoError(t, err)

	var back Record
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, "k1", back.ID)
	assert.Equal(t, "carts", back.Collection)
	got, ok := back.Lookup("user.email")
	assert.True(t, ok)
	assert.Equal(t, "a@lab.test", got)
}
