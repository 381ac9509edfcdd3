package schema

import (
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"labdesk/internal/record"
)

// EmDash marks an empty cell.
const EmDash = "—"

// DisplayLayout is the list format of datetime values.
const DisplayLayout = "02 Jan 2006, 15:04"

// Cell renders one list cell for rec: the column's render rule when present,
// else the display rule of the field's kind, else the raw attribute.
func (c *Collection) Cell(col Column, rec record.Record, loc *time.Location) string {
	if col.Render != nil {
		return col.Render(rec, loc)
	}
	if f, ok := c.Field(col.Key); ok {
		return Display(f, rec, loc)
	}
	if col.Key == "created" || col.Key == "updated" {
		return formatTimestamp(rec.String(col.Key), loc)
	}
	return orDash(rec.String(col.Key))
}

// Display renders a field value the way the list view shows it.
func Display(f Field, rec record.Record, loc *time.Location) string {
	d := &displayVisitor{rec: rec, loc: loc}
	f.Visit(d)
	return d.out
}

type displayVisitor struct {
	rec record.Record
	loc *time.Location
	out string
}

func (d *displayVisitor) Text(f Field, _ Text) {
	d.out = orDash(d.rec.String(f.Key))
}

func (d *displayVisitor) Number(f Field, _ Number) {
	d.out = d.rec.String(f.Key)
}

func (d *displayVisitor) Checkbox(f Field, _ Checkbox) {
	d.out = yesNo(d.rec.Bool(f.Key))
}

func (d *displayVisitor) Textarea(f Field, _ Textarea) {
	d.out = d.rec.String(f.Key)
}

func (d *displayVisitor) Select(f Field, _ Select) {
	d.out = d.rec.String(f.Key)
}

func (d *displayVisitor) MultiSelect(f Field, _ MultiSelect) {
	d.out = strings.Join(d.rec.Strings(f.Key), ", ")
}

func (d *displayVisitor) Relation(f Field, k Relation) {
	d.out = relatedLabel(d.rec, f.Key, k.LabelPath)
}

func (d *displayVisitor) MultiRelation(f Field, _ MultiRelation) {
	d.out = strconv.Itoa(len(d.rec.Strings(f.Key)))
}

func (d *displayVisitor) File(Field, File) {
	d.out = ""
}

func (d *displayVisitor) DateTime(f Field, _ DateTime) {
	d.out = formatTimestamp(d.rec.String(f.Key), d.loc)
}

// relatedLabel prefers the expanded record's label, then the raw id, then a dash.
func relatedLabel(rec record.Record, key, labelPath string) string {
	if rel, ok := rec.One(key); ok {
		if v, found := rel.Lookup(labelPath); found {
			if s := record.Stringify(v); s != "" {
				return s
			}
		}
	}
	return orDash(rec.String(key))
}

func formatTimestamp(raw string, loc *time.Location) string {
	if raw == "" {
		return ""
	}
	t, err := ParseTimestamp(raw)
	if err != nil {
		return raw
	}
	if loc == nil {
		loc = time.Local
	}
	return t.In(loc).Format(DisplayLayout)
}

// TimestampLayout is the store's absolute timestamp format (always UTC).
const TimestampLayout = "2006-01-02 15:04:05.000Z"

// ParseTimestamp accepts the store layout and RFC 3339.
func ParseTimestamp(raw string) (time.Time, error) {
	if t, err := time.Parse(TimestampLayout, raw); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339Nano, raw)
}

func yesNo(b bool) string {
	if b {
		return "Yes"
	}
	return "No"
}

func orDash(s string) string {
	if s == "" {
		return EmDash
	}
	return s
}

// --- render rules ---

// Currency renders a number attribute as an amount with two decimals.
func Currency(key, symbol string) Render {
	return func(rec record.Record, _ *time.Location) string {
		raw := rec.String(key)
		if raw == "" {
			return EmDash
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return raw
		}
		return symbol + humanize.FormatFloat("#,###.##", v)
	}
}

// Count renders the number of ids in a multi-valued attribute.
func Count(key string) Render {
	return func(rec record.Record, _ *time.Location) string {
		return humanize.Comma(int64(len(rec.Strings(key))))
	}
}

// Joined renders expanded related records by label, falling back to ids when the
// relation was not expanded.
func Joined(key, labelPath string) Render {
	return func(rec record.Record, _ *time.Location) string {
		related := rec.Many(key)
		if len(related) == 0 {
			return orDash(strings.Join(rec.Strings(key), ", "))
		}
		names := make([]string, 0, len(related))
		for _, r := range related {
			v, ok := r.Lookup(labelPath)
			if s := record.Stringify(v); ok && s != "" {
				names = append(names, s)
				continue
			}
			names = append(names, r.ID)
		}
		return strings.Join(names, ", ")
	}
}

// Related renders a relation through a label path other than the field's own.
func Related(key, labelPath string) Render {
	return func(rec record.Record, _ *time.Location) string {
		return relatedLabel(rec, key, labelPath)
	}
}

// Relative renders a timestamp as "3 hours ago".
func Relative(key string) Render {
	return func(rec record.Record, _ *time.Location) string {
		t, err := ParseTimestamp(rec.String(key))
		if err != nil {
			return EmDash
		}
		return humanize.Time(t)
	}
}
