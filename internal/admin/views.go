package admin

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"

	"github.com/gofiber/fiber/v2"

	"labdesk/internal/schema"
)

//go:embed templates/*.html
var templateFS embed.FS

var pages = []string{"login", "list", "form", "confirm", "message"}

// Views holds one parsed template set per page, each paired with the layout.
type Views struct {
	pages map[string]*template.Template
}

// ParseViews parses the embedded templates.
func ParseViews() (*Views, error) {
	v := &Views{pages: make(map[string]*template.Template, len(pages))}
	for _, name := range pages {
		t, err := template.ParseFS(templateFS, "templates/layout.html", "templates/"+name+".html")
		if err != nil {
			return nil, fmt.Errorf("parse %s template: %w", name, err)
		}
		v.pages[name] = t
	}
	return v, nil
}

// Render executes page into the response with the given status.
func (v *Views) Render(c *fiber.Ctx, status int, page string, data any) error {
	t, ok := v.pages[page]
	if !ok {
		return fmt.Errorf("unknown page %q", page)
	}
	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "layout", data); err != nil {
		return fmt.Errorf("render %s: %w", page, err)
	}
	c.Status(status)
	c.Set(fiber.HeaderContentType, fiber.MIMETextHTMLCharsetUTF8)
	return c.Send(buf.Bytes())
}

// NavItem is one collection tab.
type NavItem struct {
	Name   string
	Label  string
	Active bool
}

// Page is the data every page shares with the layout.
type Page struct {
	Title   string
	Nav     []NavItem
	User    string
	Alert   string
	Refresh string
}

type loginPage struct {
	Page
	Email string
	Err   string
}

type rowView struct {
	ID        string
	Cells     []string
	EditURL   string
	DeleteURL string
}

type listPage struct {
	Page
	Collection *schema.Collection
	Query      string
	Headers    []string
	Rows       []rowView
	Err        string
	Loading    bool
}

type formPage struct {
	Page
	Collection *schema.Collection
	ID         string
	IsNew      bool
	Opening    bool
	Saving     bool
	Fields     []FieldView
}

type confirmPage struct {
	Page
	Collection *schema.Collection
	ID         string
	Label      string
	Query      string
}

type messagePage struct {
	Page
	Heading string
	Message string
	Back    string
}
