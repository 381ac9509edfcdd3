package schema

// Kind selects the input widget, the list display and the save encoding of a
// field. The set is closed: only the types in this file implement it.
type Kind interface {
	// Name is the stable wire name of the kind, used in templates and logs.
	Name() string
	// Accept dispatches to the visitor method for the concrete kind.
	Accept(f Field, v Visitor)
	sealed()
}

// Visitor has one method per kind. Every per-kind behavior (encode, decode,
// seed, parse, display, storage) is a Visitor, so a new kind does not compile
// until each behavior handles it.
type Visitor interface {
	Text(f Field, k Text)
	Number(f Field, k Number)
	Checkbox(f Field, k Checkbox)
	Textarea(f Field, k Textarea)
	Select(f Field, k Select)
	MultiSelect(f Field, k MultiSelect)
	Relation(f Field, k Relation)
	MultiRelation(f Field, k MultiRelation)
	File(f Field, k File)
	DateTime(f Field, k DateTime)
}

// Choice is one option of a select or multiselect field.
type Choice struct {
	Value string
	Label string
}

type Text struct {
	Placeholder string
}

type Number struct {
	Step string // input step attribute; "" means "any"
}

type Checkbox struct{}

type Textarea struct {
	Rows int
}

type Select struct {
	Choices []Choice
}

type MultiSelect struct {
	Choices []Choice
}

// Relation references one record of another collection. LabelPath is the dot
// path used to label options and list cells.
type Relation struct {
	Collection string
	LabelPath  string
}

// MultiRelation references many records of another collection. When ShowWhen
// names a checkbox field, the picker is only shown while that box is ticked.
// ExcludeSelf disables the edited record in its own picker.
type MultiRelation struct {
	Collection  string
	LabelPath   string
	ShowWhen    string
	ExcludeSelf bool
}

// File is a single uploaded file. MIME is the accept filter of the upload
// input, e.g. "image/*".
type File struct {
	MIME string
}

// DateTime is edited as a local wall-clock value and stored as an absolute timestamp.
type DateTime struct{}

func (Text) Name() string          { return "text" }
func (Number) Name() string        { return "number" }
func (Checkbox) Name() string      { return "checkbox" }
func (Textarea) Name() string      { return "textarea" }
func (Select) Name() string        { return "select" }
func (MultiSelect) Name() string   { return "multiselect" }
func (Relation) Name() string      { return "relation" }
func (MultiRelation) Name() string { return "multirelation" }
func (File) Name() string          { return "file" }
func (DateTime) Name() string      { return "datetime" }

func (k Text) Accept(f Field, v Visitor)          { v.Text(f, k) }
func (k Number) Accept(f Field, v Visitor)        { v.Number(f, k) }
func (k Checkbox) Accept(f Field, v Visitor)      { v.Checkbox(f, k) }
func (k Textarea) Accept(f Field, v Visitor)      { v.Textarea(f, k) }
func (k Select) Accept(f Field, v Visitor)        { v.Select(f, k) }
func (k MultiSelect) Accept(f Field, v Visitor)   { v.MultiSelect(f, k) }
func (k Relation) Accept(f Field, v Visitor)      { v.Relation(f, k) }
func (k MultiRelation) Accept(f Field, v Visitor) { v.MultiRelation(f, k) }
func (k File) Accept(f Field, v Visitor)          { v.File(f, k) }
func (k DateTime) Accept(f Field, v Visitor)      { v.DateTime(f, k) }

func (Text) sealed()          {}
func (Number) sealed()        {}
func (Checkbox) sealed()      {}
func (Textarea) sealed()      {}
func (Select) sealed()        {}
func (MultiSelect) sealed()   {}
func (Relation) sealed()      {}
func (MultiRelation) sealed() {}
func (File) sealed()          {}
func (DateTime) sealed()      {}

// Field is one editable attribute. Key must equal the record's wire attribute name.
type Field struct {
	Key      string
	Label    string
	Kind     Kind
	Required bool
	Help     string
}

// Visit dispatches f to the visitor.
func (f Field) Visit(v Visitor) {
	f.Kind.Accept(f, v)
}

// Target returns the related collection and label path for relation kinds.
func (f Field) Target() (collection, labelPath string, ok bool) {
	switch k := f.Kind.(type) {
	case Relation:
		return k.Collection, k.LabelPath, true
	case MultiRelation:
		return k.Collection, k.LabelPath, true
	default:
		return "", "", false
	}
}
