package store

import "labdesk/internal/schema"

// PasswordColumn holds the bcrypt hash on the users table. It is never part
// of a record's wire attributes.
const PasswordColumn = "password_hash"

// Column describes how one field is stored.
type Column struct {
	Name   string
	Type   ColumnType
	List   bool   // JSON array of strings in a TEXT column
	File   bool   // stored filename; content lives in file storage
	Target string // related collection for relation kinds
}

// Columns returns the storage columns of c's fields in form order. The system
// columns id, created and updated are not included.
func Columns(c *schema.Collection) []Column {
	b := &columnBuilder{}
	for _, f := range c.Fields {
		f.Visit(b)
	}
	return b.cols
}

type columnBuilder struct {
	cols []Column
}

func (b *columnBuilder) add(col Column) { b.cols = append(b.cols, col) }

func (b *columnBuilder) Text(f schema.Field, _ schema.Text) {
	b.add(Column{Name: f.Key, Type: TypeText})
}

func (b *columnBuilder) Number(f schema.Field, _ schema.Number) {
	b.add(Column{Name: f.Key, Type: TypeReal})
}

func (b *columnBuilder) Checkbox(f schema.Field, _ schema.Checkbox) {
	b.add(Column{Name: f.Key, Type: TypeBool})
}

func (b *columnBuilder) Textarea(f schema.Field, _ schema.Textarea) {
	b.add(Column{Name: f.Key, Type: TypeText})
}

func (b *columnBuilder) Select(f schema.Field, _ schema.Select) {
	b.add(Column{Name: f.Key, Type: TypeText})
}

func (b *columnBuilder) MultiSelect(f schema.Field, _ schema.MultiSelect) {
	b.add(Column{Name: f.Key, Type: TypeText, List: true})
}

func (b *columnBuilder) Relation(f schema.Field, k schema.Relation) {
	b.add(Column{Name: f.Key, Type: TypeText, Target: k.Collection})
}

func (b *columnBuilder) MultiRelation(f schema.Field, k schema.MultiRelation) {
	b.add(Column{Name: f.Key, Type: TypeText, List: true, Target: k.Collection})
}

func (b *columnBuilder) File(f schema.Field, _ schema.File) {
	b.add(Column{Name: f.Key, Type: TypeText, File: true})
}

func (b *columnBuilder) DateTime(f schema.Field, _ schema.DateTime) {
	b.add(Column{Name: f.Key, Type: TypeText})
}
