package form

import (
	"bytes"
	"mime/multipart"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"labdesk/internal/record"
	"labdesk/internal/schema"
)

var ist = time.FixedZone("IST", 5*3600+1800)

func collection(t *testing.T, name string) *schema.Collection {
	t.Helper()
	c, ok := schema.Default().Lookup(name)
	require.True(t, ok, name)
	return c
}

func TestEncode_TestsDraft(t *testing.T) {
	c := collection(t, schema.Tests)
	d := NewDraft("t1")
	d.SetString("name", "Lipid Profile")
	d.SetString("price", " 1250.50 ")
	d.SetString("category", "c1")
	d.SetString("sample_type", "blood")
	d.SetList("flags", []string{"fasting_required", "home_collection"})
	d.SetString("turnaround_hours", "abc")
	d.SetFlag("top_level_test", true)
	d.SetList("included_tests", []string{"t2", "t1", "t3"})

	sub, err := Encode(c, d, ist)
	require.NoError(t, err)

	assert.Equal(t, []string{"Lipid Profile"}, sub.Values("name"))
	assert.Equal(t, []string{"1250.5"}, sub.Values("price"))
	assert.Equal(t, []string{""}, sub.Values("turnaround_hours"))
	assert.Equal(t, []string{"true"}, sub.Values("top_level_test"))
	assert.Equal(t, []string{"fasting_required", "home_collection"}, sub.Values("flags"))
	assert.Equal(t, []string{"t2", "t3"}, sub.Values("included_tests"), "self id is dropped")
	assert.False(t, sub.Has("image"), "no upload chosen")
}

func TestEncode_EmptyMultiValuesSendOneBlankPart(t *testing.T) {
	c := collection(t, schema.Tests)
	sub, err := Encode(c, NewDraft(""), ist)
	require.NoError(t, err)

	assert.Equal(t, []string{""}, sub.Values("flags"))
	assert.Equal(t, []string{""}, sub.Values("included_tests"))
	assert.Equal(t, []string{"false"}, sub.Values("top_level_test"))
}

func TestEncode_FileOnlyWhenChosen(t *testing.T) {
	c := collection(t, schema.Team)
	d := NewDraft("m1")
	d.SetString("photo", "existing.png")

	sub, err := Encode(c, d, ist)
	require.NoError(t, err)
	assert.Empty(t, sub.Files("photo"))
	assert.False(t, sub.Has("photo"))

	d.SetFile("photo", &Upload{Filename: "new.png", ContentType: "image/png", Data: []byte("png")})
	sub, err = Encode(c, d, ist)
	require.NoError(t, err)
	files := sub.Files("photo")
	require.Len(t, files, 1)
	assert.Equal(t, "new.png", files[0].Filename)
}

func TestEncode_DateTimeConvertsToUTC(t *testing.T) {
	c := collection(t, schema.Carts)
	d := NewDraft("")
	d.SetString("scheduled_at", "2024-03-10T02:30")

	sub, err := Encode(c, d, ist)
	require.NoError(t, err)
	assert.Equal(t, []string{"2024-03-09 21:00:00.000Z"}, sub.Values("scheduled_at"))

	d.SetString("scheduled_at", "")
	sub, err = Encode(c, d, ist)
	require.NoError(t, err)
	assert.Equal(t, []string{""}, sub.Values("scheduled_at"))

	d.SetString("scheduled_at", "tomorrow")
	_, err = Encode(c, d, ist)
	assert.ErrorContains(t, err, "Collection slot")
}

func TestDecode_RoundTrip(t *testing.T) {
	c := collection(t, schema.Tests)
	d := NewDraft("t9")
	d.SetString("name", "Thyroid Panel")
	d.SetString("code", "TP-3")
	d.SetString("description", "T3, T4 and TSH")
	d.SetString("price", "899")
	d.SetString("category", "c2")
	d.SetString("sample_type", "blood")
	d.SetList("flags", []string{"same_day_report"})
	d.SetString("turnaround_hours", "24")
	d.SetFlag("top_level_test", true)
	d.SetList("included_tests", []string{"t1", "t2"})
	d.SetFile("image", &Upload{Filename: "tp.jpg", ContentType: "image/jpeg", Data: []byte{1, 2}})

	sub, err := Encode(c, d, ist)
	require.NoError(t, err)
	got := Decode(c, "t9", sub, ist)

	opts := cmp.AllowUnexported(Draft{})
	if diff := cmp.Diff(d, got, opts); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestDecode_RoundTripDateTimeAcrossDayBoundary(t *testing.T) {
	c := collection(t, schema.Pages)
	for _, local := range []string{"2024-03-10T02:30", "2024-12-31T23:59", "2025-01-01T00:00"} {
		d := NewDraft("p1")
		d.SetString("label", "Home")
		d.SetString("published_at", local)

		sub, err := Encode(c, d, ist)
		require.NoError(t, err)
		got := Decode(c, "p1", sub, ist)
		assert.Equal(t, local, got.String("published_at"))
	}
}

func TestSeed_FromRecord(t *testing.T) {
	c := collection(t, schema.Tests)
	rec := record.New(schema.Tests, "t1")
	rec.Attrs["name"] = "CBC"
	rec.Attrs["price"] = 450.0
	rec.Attrs["top_level_test"] = true
	rec.Attrs["flags"] = []any{"fasting_required"}
	rec.Attrs["included_tests"] = []any{"t2", "t3"}
	rec.Attrs["image"] = "cbc_x1.png"

	d := Seed(c, rec, ist)

	assert.Equal(t, "t1", d.ID)
	assert.False(t, d.IsNew())
	assert.Equal(t, "CBC", d.String("name"))
	assert.Equal(t, "450", d.String("price"))
	assert.True(t, d.Flag("top_level_test"))
	assert.True(t, d.Has("flags", "fasting_required"))
	assert.Equal(t, []string{"t2", "t3"}, d.List("included_tests"))
	assert.Equal(t, "cbc_x1.png", d.String("image"))
	assert.Nil(t, d.File("image"))
}

func TestSeed_DateTimeIsLocalWallClock(t *testing.T) {
	c := collection(t, schema.Carts)
	rec := record.New(schema.Carts, "k1")
	rec.Attrs["scheduled_at"] = "2024-03-09 21:00:00.000Z"

	d := Seed(c, rec, ist)
	assert.Equal(t, "2024-03-10T02:30", d.String("scheduled_at"))
}

func parseForm(t *testing.T, build func(w *multipart.Writer)) *multipart.Form {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	build(w)
	require.NoError(t, w.Close())
	mf, err := multipart.NewReader(&buf, w.Boundary()).ReadForm(1 << 20)
	require.NoError(t, err)
	return mf
}

func TestFromForm(t *testing.T) {
	c := collection(t, schema.Tests)
	mf := parseForm(t, func(w *multipart.Writer) {
		_ = w.WriteField("id", "t1")
		_ = w.WriteField("name", "  ESR ")
		_ = w.WriteField("top_level_test", "on")
		_ = w.WriteField("flags", "fasting_required")
		_ = w.WriteField("flags", "home_collection")
		_ = w.WriteField("included_tests", "")
		_, _ = w.CreateFormFile("image", "")
	})

	d, err := FromForm(c, mf)
	require.NoError(t, err)

	assert.Equal(t, "t1", d.ID)
	assert.Equal(t, "ESR", d.String("name"))
	assert.True(t, d.Flag("top_level_test"))
	assert.Equal(t, []string{"fasting_required", "home_collection"}, d.List("flags"))
	assert.Empty(t, d.List("included_tests"))
	assert.Nil(t, d.File("image"), "empty file input is not an upload")
}

func TestFromForm_UncheckedAndUpload(t *testing.T) {
	c := collection(t, schema.Users)
	mf := parseForm(t, func(w *multipart.Writer) {
		_ = w.WriteField("email", "a@lab.test")
		_ = w.WriteField("is_admin", "false")
		fw, err := w.CreateFormFile("avatar", "me.png")
		require.NoError(t, err)
		_, _ = fw.Write([]byte("img"))
	})

	d, err := FromForm(c, mf)
	require.NoError(t, err)

	assert.True(t, d.IsNew())
	assert.False(t, d.Flag("is_admin"))
	require.NotNil(t, d.File("avatar"))
	assert.Equal(t, "me.png", d.File("avatar").Filename)
	assert.Equal(t, []byte("img"), d.File("avatar").Data)
}

func TestSubmission_WriteMultipartKeepsOrder(t *testing.T) {
	sub := &Submission{}
	sub.Add("flags", "a")
	sub.Add("flags", "b")
	sub.AddFile("photo", &Upload{Filename: `x"y.png`, Data: []byte("d")})

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	require.NoError(t, sub.WriteMultipart(w))

	mf, err := multipart.NewReader(&buf, w.Boundary()).ReadForm(1 << 20)
	require.NoError(t, err)
	back, err := FromMultipart(mf)
	require.NoError(t, err)

	assert.Equal(t, []string{"a", "b"}, back.Values("flags"))
	files := back.Files("photo")
	require.Len(t, files, 1)
	assert.Equal(t, `x"y.png`, files[0].Filename)
	assert.Equal(t, "application/octet-stream", files[0].ContentType)
}

func TestFromLocalInput(t *testing.T) {
	got, err := FromLocalInput("2024-01-01T00:15", ist)
	require.NoError(t, err)
	assert.Equal(t, "2023-12-31 18:45:00.000Z", got)

	assert.Equal(t, "", ToLocalInput("garbage", ist))
	assert.Equal(t, "2024-01-01T00:15", ToLocalInput("2023-12-31T18:45:00Z", ist))
}

func TestSeedEncode_UneditedDateTimeKeepsSeconds(t *testing.T) {
	c := collection(t, schema.Carts)
	for _, stored := range []string{"2024-03-09 21:00:47.000Z", "2024-03-09 21:00:00.000Z"} {
		rec := record.New(schema.Carts, "k1")
		rec.Attrs["scheduled_at"] = stored

		sub, err := Encode(c, Seed(c, rec, ist), ist)
		require.NoError(t, err)
		assert.Equal(t, []string{stored}, sub.Values("scheduled_at"))
	}

	assert.Equal(t, "2024-03-10T02:30:47", ToLocalInput("2024-03-09 21:00:47.000Z", ist))
	assert.Equal(t, "2024-03-10T02:30", ToLocalInput("2024-03-09 21:00:00.000Z", ist))
}
