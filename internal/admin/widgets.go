package admin

import (
	"labdesk/internal/form"
	"labdesk/internal/gateway"
	"labdesk/internal/record"
	"labdesk/internal/schema"
)

// ChoiceView is one option of a select, checkbox group or relation picker.
type ChoiceView struct {
	Value    string
	Label    string
	Selected bool
	Disabled bool
}

// FieldView is everything a template needs to draw one input.
type FieldView struct {
	Key         string
	Label       string
	Kind        string
	Required    bool
	Help        string
	Placeholder string
	Step        string
	Rows        int
	Accept      string
	Value       string
	Checked     bool
	Choices     []ChoiceView
	ShowWhen    string
	Hidden      bool
	CurrentFile string
	FileURL     string
	PendingFile string
	Unavailable string
}

type widgetBuilder struct {
	coll       *schema.Collection
	draft      *form.Draft
	existing   record.Record
	options    map[string][]gateway.Option
	optionsErr string
	fileURL    func(collection, id, filename string) string
	out        []FieldView
}

// buildWidgets lays out the inputs of the open form in field order.
func buildWidgets(v EditView, fileURL func(collection, id, filename string) string) []FieldView {
	b := &widgetBuilder{
		coll:       v.Collection,
		draft:      v.Draft,
		existing:   v.Existing,
		options:    v.Options,
		optionsErr: v.OptionsErr,
		fileURL:    fileURL,
	}
	for _, f := range v.Collection.Fields {
		f.Visit(b)
	}
	return b.out
}

func (b *widgetBuilder) base(f schema.Field) FieldView {
	return FieldView{
		Key:      f.Key,
		Label:    f.Label,
		Kind:     f.Kind.Name(),
		Required: f.Required,
		Help:     f.Help,
	}
}

func (b *widgetBuilder) Text(f schema.Field, k schema.Text) {
	fv := b.base(f)
	fv.Placeholder = k.Placeholder
	fv.Value = b.draft.String(f.Key)
	b.out = append(b.out, fv)
}

func (b *widgetBuilder) Number(f schema.Field, k schema.Number) {
	fv := b.base(f)
	fv.Step = k.Step
	if fv.Step == "" {
		fv.Step = "any"
	}
	fv.Value = b.draft.String(f.Key)
	b.out = append(b.out, fv)
}

func (b *widgetBuilder) Checkbox(f schema.Field, _ schema.Checkbox) {
	fv := b.base(f)
	fv.Checked = b.draft.Flag(f.Key)
	b.out = append(b.out, fv)
}

func (b *widgetBuilder) Textarea(f schema.Field, k schema.Textarea) {
	fv := b.base(f)
	fv.Rows = k.Rows
	fv.Value = b.draft.String(f.Key)
	b.out = append(b.out, fv)
}

func (b *widgetBuilder) Select(f schema.Field, k schema.Select) {
	fv := b.base(f)
	fv.Value = b.draft.String(f.Key)
	for _, c := range k.Choices {
		fv.Choices = append(fv.Choices, ChoiceView{Value: c.Value, Label: c.Label, Selected: c.Value == fv.Value})
	}
	b.out = append(b.out, fv)
}

func (b *widgetBuilder) MultiSelect(f schema.Field, k schema.MultiSelect) {
	fv := b.base(f)
	for _, c := range k.Choices {
		fv.Choices = append(fv.Choices, ChoiceView{Value: c.Value, Label: c.Label, Selected: b.draft.Has(f.Key, c.Value)})
	}
	b.out = append(b.out, fv)
}

func (b *widgetBuilder) Relation(f schema.Field, _ schema.Relation) {
	fv := b.base(f)
	fv.Value = b.draft.String(f.Key)
	fv.Choices = b.relationChoices(f.Key, func(id string) bool { return id == fv.Value }, "")
	if b.optionsErr != "" && b.options[f.Key] == nil {
		fv.Unavailable = b.optionsErr
	}
	b.out = append(b.out, fv)
}

func (b *widgetBuilder) MultiRelation(f schema.Field, k schema.MultiRelation) {
	fv := b.base(f)
	self := ""
	if k.ExcludeSelf {
		self = b.draft.ID
	}
	fv.Choices = b.relationChoices(f.Key, func(id string) bool { return b.draft.Has(f.Key, id) }, self)
	if k.ShowWhen != "" {
		fv.ShowWhen = k.ShowWhen
		fv.Hidden = !b.draft.Flag(k.ShowWhen)
	}
	if b.optionsErr != "" && b.options[f.Key] == nil {
		fv.Unavailable = b.optionsErr
	}
	b.out = append(b.out, fv)
}

// relationChoices lists the fetched options. A selected id missing from the
// options is kept so saving does not silently drop it.
func (b *widgetBuilder) relationChoices(key string, selected func(string) bool, disabled string) []ChoiceView {
	opts := b.options[key]
	out := make([]ChoiceView, 0, len(opts))
	seen := make(map[string]bool, len(opts))
	for _, o := range opts {
		seen[o.ID] = true
		out = append(out, ChoiceView{
			Value:    o.ID,
			Label:    o.Label,
			Selected: selected(o.ID),
			Disabled: o.ID == disabled,
		})
	}
	var current []string
	if v := b.draft.String(key); v != "" {
		current = append(current, v)
	}
	current = append(current, b.draft.List(key)...)
	for _, id := range current {
		if !seen[id] {
			seen[id] = true
			out = append(out, ChoiceView{Value: id, Label: id, Selected: true, Disabled: id == disabled})
		}
	}
	return out
}

func (b *widgetBuilder) File(f schema.Field, k schema.File) {
	fv := b.base(f)
	fv.Accept = k.MIME
	fv.CurrentFile = b.draft.String(f.Key)
	if fv.CurrentFile != "" && b.draft.ID != "" && b.fileURL != nil {
		names := b.existing.Strings(f.Key)
		if len(names) > 0 {
			fv.FileURL = b.fileURL(b.coll.Name, b.draft.ID, names[0])
		}
	}
	if u := b.draft.File(f.Key); u != nil {
		fv.PendingFile = u.Filename
	}
	b.out = append(b.out, fv)
}

func (b *widgetBuilder) DateTime(f schema.Field, _ schema.DateTime) {
	fv := b.base(f)
	fv.Value = b.draft.String(f.Key)
	b.out = append(b.out, fv)
}
