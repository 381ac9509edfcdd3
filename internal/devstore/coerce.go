package devstore

import (
	"encoding/json"
	"fmt"
	"mime/multipart"
	"slices"
	"strconv"
	"strings"

	"labdesk/internal/schema"
)

// formInput is a posted record body: plain values plus uploaded files.
type formInput struct {
	values map[string][]string
	files  map[string][]*multipart.FileHeader
}

func (in formInput) has(key string) bool {
	_, v := in.values[key]
	_, f := in.files[key]
	return v || f
}

func (in formInput) first(key string) string {
	if vs := in.values[key]; len(vs) > 0 {
		return vs[0]
	}
	return ""
}

// list returns the non-blank values of key, deduplicated in order.
func (in formInput) list(key string) []string {
	out := []string{}
	for _, v := range in.values[key] {
		if v = strings.TrimSpace(v); v != "" && !slices.Contains(out, v) {
			out = append(out, v)
		}
	}
	return out
}

// upload returns the first file part of key that carries content.
func (in formInput) upload(key string) *multipart.FileHeader {
	for _, fh := range in.files[key] {
		if fh != nil && fh.Filename != "" && fh.Size > 0 {
			return fh
		}
	}
	return nil
}

// relationRef is a set of ids that must exist in the target collection.
type relationRef struct {
	Field  string
	Target string
	IDs    []string
}

// coercion is the outcome of converting a posted body into column values.
type coercion struct {
	values    map[string]any
	uploads   map[string]*multipart.FileHeader
	relations []relationRef
	errs      map[string]string
}

// coerce converts in into column values for c. On create every field gets a
// value; on update only the keys present in the body are touched.
func coerce(c *schema.Collection, in formInput, create bool, maxFileSize int64) *coercion {
	v := &coercer{
		in:      in,
		create:  create,
		maxSize: maxFileSize,
		out: &coercion{
			values:  map[string]any{},
			uploads: map[string]*multipart.FileHeader{},
			errs:    map[string]string{},
		},
	}
	for _, f := range c.Fields {
		if !create && !in.has(f.Key) {
			continue
		}
		f.Visit(v)
	}
	return v.out
}

type coercer struct {
	in      formInput
	create  bool
	maxSize int64
	out     *coercion
}

func (c *coercer) fail(f schema.Field, msg string) { c.out.errs[f.Key] = msg }

func (c *coercer) text(f schema.Field) {
	v := c.in.first(f.Key)
	if f.Required && strings.TrimSpace(v) == "" {
		c.fail(f, "Cannot be blank.")
		return
	}
	c.out.values[f.Key] = v
}

func (c *coercer) Text(f schema.Field, _ schema.Text) { c.text(f) }

func (c *coercer) Textarea(f schema.Field, _ schema.Textarea) { c.text(f) }

func (c *coercer) Number(f schema.Field, _ schema.Number) {
	raw := strings.TrimSpace(c.in.first(f.Key))
	if raw == "" {
		if f.Required {
			c.fail(f, "Cannot be blank.")
			return
		}
		c.out.values[f.Key] = float64(0)
		return
	}
	n, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		c.fail(f, "Must be a valid number.")
		return
	}
	c.out.values[f.Key] = n
}

func (c *coercer) Checkbox(f schema.Field, _ schema.Checkbox) {
	switch strings.ToLower(strings.TrimSpace(c.in.first(f.Key))) {
	case "true", "1", "on":
		c.out.values[f.Key] = true
	default:
		c.out.values[f.Key] = false
	}
}

func (c *coercer) Select(f schema.Field, k schema.Select) {
	v := strings.TrimSpace(c.in.first(f.Key))
	switch {
	case v == "" && f.Required:
		c.fail(f, "Cannot be blank.")
	case v != "" && !hasChoice(k.Choices, v):
		c.fail(f, fmt.Sprintf("Invalid value %q.", v))
	default:
		c.out.values[f.Key] = v
	}
}

func (c *coercer) MultiSelect(f schema.Field, k schema.MultiSelect) {
	vs := c.in.list(f.Key)
	for _, v := range vs {
		if !hasChoice(k.Choices, v) {
			c.fail(f, fmt.Sprintf("Invalid value %q.", v))
			return
		}
	}
	c.list(f, vs)
}

func (c *coercer) Relation(f schema.Field, k schema.Relation) {
	v := strings.TrimSpace(c.in.first(f.Key))
	if v == "" {
		if f.Required {
			c.fail(f, "Cannot be blank.")
			return
		}
		c.out.values[f.Key] = ""
		return
	}
	c.out.relations = append(c.out.relations, relationRef{Field: f.Key, Target: k.Collection, IDs: []string{v}})
	c.out.values[f.Key] = v
}

func (c *coercer) MultiRelation(f schema.Field, k schema.MultiRelation) {
	vs := c.in.list(f.Key)
	if len(vs) > 0 {
		c.out.relations = append(c.out.relations, relationRef{Field: f.Key, Target: k.Collection, IDs: vs})
	}
	c.list(f, vs)
}

func (c *coercer) list(f schema.Field, vs []string) {
	if f.Required && len(vs) == 0 {
		c.fail(f, "Cannot be blank.")
		return
	}
	b, _ := json.Marshal(vs)
	c.out.values[f.Key] = string(b)
}

// File records a chosen upload. A plain blank value clears the stored file;
// the stored name itself is assigned once the upload is saved.
func (c *coercer) File(f schema.Field, _ schema.File) {
	if fh := c.in.upload(f.Key); fh != nil {
		if c.maxSize > 0 && fh.Size > c.maxSize {
			c.fail(f, fmt.Sprintf("File is too large (max %d bytes).", c.maxSize))
			return
		}
		c.out.uploads[f.Key] = fh
		return
	}
	if f.Required {
		c.fail(f, "Cannot be blank.")
		return
	}
	if c.create || strings.TrimSpace(c.in.first(f.Key)) == "" {
		c.out.values[f.Key] = ""
	}
}

func (c *coercer) DateTime(f schema.Field, _ schema.DateTime) {
	raw := strings.TrimSpace(c.in.first(f.Key))
	if raw == "" {
		if f.Required {
			c.fail(f, "Cannot be blank.")
			return
		}
		c.out.values[f.Key] = ""
		return
	}
	t, err := schema.ParseTimestamp(raw)
	if err != nil {
		c.fail(f, "Must be a valid datetime.")
		return
	}
	c.out.values[f.Key] = t.UTC().Format(schema.TimestampLayout)
}

func hasChoice(choices []schema.Choice, v string) bool {
	return slices.ContainsFunc(choices, func(ch schema.Choice) bool { return ch.Value == v })
}
