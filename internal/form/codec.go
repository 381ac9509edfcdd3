package form

import (
	"fmt"
	"math"
	"mime/multipart"
	"slices"
	"strconv"
	"strings"
	"time"

	"labdesk/internal/record"
	"labdesk/internal/schema"
)

// Encode serializes every field of the draft, changed or not. File fields are
// only included when a new file was chosen, so the stored file survives an edit.
func Encode(c *schema.Collection, d *Draft, loc *time.Location) (*Submission, error) {
	e := &encoder{draft: d, loc: loc, sub: &Submission{}}
	for _, f := range c.Fields {
		f.Visit(e)
		if e.err != nil {
			return nil, e.err
		}
	}
	return e.sub, nil
}

type encoder struct {
	draft *Draft
	loc   *time.Location
	sub   *Submission
	err   error
}

func (e *encoder) Text(f schema.Field, _ schema.Text) {
	e.sub.Add(f.Key, e.draft.String(f.Key))
}

func (e *encoder) Number(f schema.Field, _ schema.Number) {
	e.sub.Add(f.Key, canonicalNumber(e.draft.String(f.Key)))
}

func (e *encoder) Checkbox(f schema.Field, _ schema.Checkbox) {
	e.sub.Add(f.Key, strconv.FormatBool(e.draft.Flag(f.Key)))
}

func (e *encoder) Textarea(f schema.Field, _ schema.Textarea) {
	e.sub.Add(f.Key, e.draft.String(f.Key))
}

func (e *encoder) Select(f schema.Field, _ schema.Select) {
	e.sub.Add(f.Key, e.draft.String(f.Key))
}

func (e *encoder) MultiSelect(f schema.Field, _ schema.MultiSelect) {
	e.addList(f.Key, e.draft.List(f.Key))
}

func (e *encoder) Relation(f schema.Field, _ schema.Relation) {
	e.sub.Add(f.Key, e.draft.String(f.Key))
}

func (e *encoder) MultiRelation(f schema.Field, k schema.MultiRelation) {
	ids := e.draft.List(f.Key)
	if k.ExcludeSelf && e.draft.ID != "" {
		ids = slices.DeleteFunc(slices.Clone(ids), func(id string) bool { return id == e.draft.ID })
	}
	e.addList(f.Key, ids)
}

func (e *encoder) File(f schema.Field, _ schema.File) {
	if u := e.draft.File(f.Key); u != nil {
		e.sub.AddFile(f.Key, u)
	}
}

func (e *encoder) DateTime(f schema.Field, _ schema.DateTime) {
	abs, err := FromLocalInput(e.draft.String(f.Key), e.loc)
	if err != nil {
		e.err = fmt.Errorf("%s: %w", f.Label, err)
		return
	}
	e.sub.Add(f.Key, abs)
}

// addList appends one part per value, or a single empty part so the store
// clears the field instead of ignoring it.
func (e *encoder) addList(key string, values []string) {
	if len(values) == 0 {
		e.sub.Add(key, "")
		return
	}
	for _, v := range values {
		e.sub.Add(key, v)
	}
}

// canonicalNumber maps blank and non-numeric input to "" and everything else to
// the shortest decimal form.
func canonicalNumber(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return ""
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// Decode rebuilds a draft from a submission, the inverse of Encode.
func Decode(c *schema.Collection, id string, sub *Submission, loc *time.Location) *Draft {
	d := &decoder{sub: sub, loc: loc, draft: NewDraft(id)}
	for _, f := range c.Fields {
		f.Visit(d)
	}
	return d.draft
}

type decoder struct {
	sub   *Submission
	loc   *time.Location
	draft *Draft
}

func (d *decoder) first(key string) string {
	if vals := d.sub.Values(key); len(vals) > 0 {
		return vals[0]
	}
	return ""
}

func (d *decoder) list(key string) []string {
	var out []string
	for _, v := range d.sub.Values(key) {
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}

func (d *decoder) Text(f schema.Field, _ schema.Text) { d.draft.SetString(f.Key, d.first(f.Key)) }

func (d *decoder) Number(f schema.Field, _ schema.Number) {
	d.draft.SetString(f.Key, canonicalNumber(d.first(f.Key)))
}

func (d *decoder) Checkbox(f schema.Field, _ schema.Checkbox) {
	d.draft.SetFlag(f.Key, d.first(f.Key) == "true")
}

func (d *decoder) Textarea(f schema.Field, _ schema.Textarea) {
	d.draft.SetString(f.Key, d.first(f.Key))
}

func (d *decoder) Select(f schema.Field, _ schema.Select) { d.draft.SetString(f.Key, d.first(f.Key)) }

func (d *decoder) MultiSelect(f schema.Field, _ schema.MultiSelect) {
	d.draft.SetList(f.Key, d.list(f.Key))
}

func (d *decoder) Relation(f schema.Field, _ schema.Relation) {
	d.draft.SetString(f.Key, d.first(f.Key))
}

func (d *decoder) MultiRelation(f schema.Field, _ schema.MultiRelation) {
	d.draft.SetList(f.Key, d.list(f.Key))
}

func (d *decoder) File(f schema.Field, _ schema.File) {
	if files := d.sub.Files(f.Key); len(files) > 0 {
		d.draft.SetFile(f.Key, files[0])
	}
}

func (d *decoder) DateTime(f schema.Field, _ schema.DateTime) {
	d.draft.SetString(f.Key, ToLocalInput(d.first(f.Key), d.loc))
}

// Seed copies a stored record into a new draft. Datetimes become local input
// values; file fields keep the stored filename for display only.
func Seed(c *schema.Collection, rec record.Record, loc *time.Location) *Draft {
	s := &seeder{rec: rec, loc: loc, draft: NewDraft(rec.ID)}
	for _, f := range c.Fields {
		f.Visit(s)
	}
	return s.draft
}

type seeder struct {
	rec   record.Record
	loc   *time.Location
	draft *Draft
}

func (s *seeder) Text(f schema.Field, _ schema.Text) { s.draft.SetString(f.Key, s.rec.String(f.Key)) }

func (s *seeder) Number(f schema.Field, _ schema.Number) {
	s.draft.SetString(f.Key, s.rec.String(f.Key))
}

func (s *seeder) Checkbox(f schema.Field, _ schema.Checkbox) {
	s.draft.SetFlag(f.Key, s.rec.Bool(f.Key))
}

func (s *seeder) Textarea(f schema.Field, _ schema.Textarea) {
	s.draft.SetString(f.Key, s.rec.String(f.Key))
}

func (s *seeder) Select(f schema.Field, _ schema.Select) {
	s.draft.SetString(f.Key, s.rec.String(f.Key))
}

func (s *seeder) MultiSelect(f schema.Field, _ schema.MultiSelect) {
	s.draft.SetList(f.Key, s.rec.Strings(f.Key))
}

func (s *seeder) Relation(f schema.Field, _ schema.Relation) {
	s.draft.SetString(f.Key, s.rec.String(f.Key))
}

func (s *seeder) MultiRelation(f schema.Field, _ schema.MultiRelation) {
	s.draft.SetList(f.Key, s.rec.Strings(f.Key))
}

func (s *seeder) File(f schema.Field, _ schema.File) {
	s.draft.SetString(f.Key, strings.Join(s.rec.Strings(f.Key), ", "))
}

func (s *seeder) DateTime(f schema.Field, _ schema.DateTime) {
	s.draft.SetString(f.Key, ToLocalInput(s.rec.String(f.Key), s.loc))
}

// FromForm reads the console's own HTML form post into a draft. An unticked
// checkbox is absent from the post and reads as false; an empty file input is
// not an upload.
func FromForm(c *schema.Collection, mf *multipart.Form) (*Draft, error) {
	id := ""
	if vals := mf.Value["id"]; len(vals) > 0 {
		id = strings.TrimSpace(vals[0])
	}
	p := &formParser{mf: mf, draft: NewDraft(id)}
	for _, f := range c.Fields {
		f.Visit(p)
		if p.err != nil {
			return nil, p.err
		}
	}
	return p.draft, nil
}

type formParser struct {
	mf    *multipart.Form
	draft *Draft
	err   error
}

func (p *formParser) first(key string) string {
	if vals := p.mf.Value[key]; len(vals) > 0 {
		return vals[0]
	}
	return ""
}

func (p *formParser) list(key string) []string {
	var out []string
	for _, v := range p.mf.Value[key] {
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}

func (p *formParser) Text(f schema.Field, _ schema.Text) {
	p.draft.SetString(f.Key, strings.TrimSpace(p.first(f.Key)))
}

func (p *formParser) Number(f schema.Field, _ schema.Number) {
	p.draft.SetString(f.Key, strings.TrimSpace(p.first(f.Key)))
}

func (p *formParser) Checkbox(f schema.Field, _ schema.Checkbox) {
	switch strings.ToLower(p.first(f.Key)) {
	case "", "false", "off", "0":
		p.draft.SetFlag(f.Key, false)
	default:
		p.draft.SetFlag(f.Key, true)
	}
}

func (p *formParser) Textarea(f schema.Field, _ schema.Textarea) {
	p.draft.SetString(f.Key, p.first(f.Key))
}

func (p *formParser) Select(f schema.Field, _ schema.Select) {
	p.draft.SetString(f.Key, p.first(f.Key))
}

func (p *formParser) MultiSelect(f schema.Field, _ schema.MultiSelect) {
	p.draft.SetList(f.Key, p.list(f.Key))
}

func (p *formParser) Relation(f schema.Field, _ schema.Relation) {
	p.draft.SetString(f.Key, p.first(f.Key))
}

func (p *formParser) MultiRelation(f schema.Field, _ schema.MultiRelation) {
	p.draft.SetList(f.Key, p.list(f.Key))
}

func (p *formParser) File(f schema.Field, _ schema.File) {
	headers := p.mf.File[f.Key]
	if len(headers) == 0 || headers[0].Size == 0 || headers[0].Filename == "" {
		return
	}
	u, err := ReadUpload(headers[0])
	if err != nil {
		p.err = err
		return
	}
	p.draft.SetFile(f.Key, u)
}

func (p *formParser) DateTime(f schema.Field, _ schema.DateTime) {
	p.draft.SetString(f.Key, strings.TrimSpace(p.first(f.Key)))
}
