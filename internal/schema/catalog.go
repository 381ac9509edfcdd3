package schema

import (
	"time"

	"labdesk/internal/record"
)

// Collection names of the catalog.
const (
	Users      = "users"
	Categories = "categories"
	Tests      = "tests"
	Carts      = "carts"
	Pages      = "pages"
	Team       = "team"
)

// Default returns the registry of the six admin collections.
func Default() *Registry {
	return MustNewRegistry(
		usersCollection(),
		categoriesCollection(),
		testsCollection(),
		cartsCollection(),
		pagesCollection(),
		teamCollection(),
	)
}

func usersCollection() *Collection {
	return &Collection{
		Name:  Users,
		Label: "Users",
		Columns: []Column{
			{Key: "email", Header: "Email"},
			{Key: "name", Header: "Name"},
			{Key: "is_admin", Header: "Admin"},
			{Key: "updated", Header: "Updated", Render: Relative("updated")},
		},
		Fields: []Field{
			{Key: "email", Label: "Email", Kind: Text{Placeholder: "name@example.com"}, Required: true},
			{Key: "name", Label: "Name", Kind: Text{}},
			{Key: "phone", Label: "Phone", Kind: Text{}},
			{Key: "is_admin", Label: "Administrator", Kind: Checkbox{}},
			{Key: "avatar", Label: "Avatar", Kind: File{MIME: "image/*"}},
		},
		SearchFields: []string{"email", "name"},
		DefaultSort:  "-updated",
	}
}

func categoriesCollection() *Collection {
	return &Collection{
		Name:  Categories,
		Label: "Categories",
		Columns: []Column{
			{Key: "name", Header: "Name"},
			{Key: "slug", Header: "Slug"},
			{Key: "sort_order", Header: "Order"},
		},
		Fields: []Field{
			{Key: "name", Label: "Name", Kind: Text{}, Required: true},
			{Key: "slug", Label: "Slug", Kind: Text{Placeholder: "cardiac-health"}},
			{Key: "description", Label: "Description", Kind: Textarea{Rows: 4}},
			{Key: "sort_order", Label: "Sort order", Kind: Number{Step: "1"}},
			{Key: "icon", Label: "Icon", Kind: File{MIME: "image/*"}},
		},
		SearchFields: []string{"name", "slug"},
		DefaultSort:  "-updated",
	}
}

// SampleTypes are the specimen kinds a test can require.
var SampleTypes = []Choice{
	{Value: "blood", Label: "Blood"},
	{Value: "urine", Label: "Urine"},
	{Value: "saliva", Label: "Saliva"},
	{Value: "swab", Label: "Swab"},
}

func testsCollection() *Collection {
	return &Collection{
		Name:  Tests,
		Label: "Tests",
		Columns: []Column{
			{Key: "name", Header: "Name"},
			{Key: "category", Header: "Category"},
			{Key: "price", Header: "Price", Render: Currency("price", "₹")},
			{Key: "top_level_test", Header: "Package"},
			{Key: "included_tests", Header: "Includes", Render: Count("included_tests")},
		},
		Fields: []Field{
			{Key: "name", Label: "Name", Kind: Text{}, Required: true},
			{Key: "code", Label: "Code", Kind: Text{Placeholder: "LP-01"}},
			{Key: "description", Label: "Description", Kind: Textarea{Rows: 5}},
			{Key: "price", Label: "Price", Kind: Number{Step: "0.01"}},
			{Key: "category", Label: "Category", Kind: Relation{Collection: Categories, LabelPath: "name"}},
			{Key: "sample_type", Label: "Sample type", Kind: Select{Choices: SampleTypes}},
			{Key: "flags", Label: "Flags", Kind: MultiSelect{Choices: []Choice{
				{Value: "fasting_required", Label: "Fasting required"},
				{Value: "home_collection", Label: "Home collection"},
				{Value: "same_day_report", Label: "Same-day report"},
			}}},
			{Key: "turnaround_hours", Label: "Turnaround (hours)", Kind: Number{Step: "1"}},
			{Key: "top_level_test", Label: "Includes other tests", Kind: Checkbox{},
				Help: "Packages bundle other tests."},
			{Key: "included_tests", Label: "Included tests", Kind: MultiRelation{
				Collection:  Tests,
				LabelPath:   "name",
				ShowWhen:    "top_level_test",
				ExcludeSelf: true,
			}},
			{Key: "image", Label: "Image", Kind: File{MIME: "image/*"}},
		},
		SearchFields: []string{"name", "code"},
		DefaultSort:  "-updated",
		Expand:       []string{"category", "included_tests"},
	}
}

// CartStatuses are the order lifecycle states of a cart line.
var CartStatuses = []Choice{
	{Value: "pending", Label: "Pending"},
	{Value: "confirmed", Label: "Confirmed"},
	{Value: "collected", Label: "Sample collected"},
	{Value: "reported", Label: "Reported"},
	{Value: "cancelled", Label: "Cancelled"},
}

func cartsCollection() *Collection {
	return &Collection{
		Name:  Carts,
		Label: "Carts",
		Columns: []Column{
			{Key: "user", Header: "User"},
			{Key: "test", Header: "Test"},
			{Key: "quantity", Header: "Qty"},
			{Key: "status", Header: "Status"},
			{Key: "scheduled_at", Header: "Scheduled"},
		},
		Fields: []Field{
			{Key: "user", Label: "User", Kind: Relation{Collection: Users, LabelPath: "email"}, Required: true},
			{Key: "test", Label: "Test", Kind: Relation{Collection: Tests, LabelPath: "name"}, Required: true},
			{Key: "quantity", Label: "Quantity", Kind: Number{Step: "1"}},
			{Key: "status", Label: "Status", Kind: Select{Choices: CartStatuses}},
			{Key: "scheduled_at", Label: "Collection slot", Kind: DateTime{}},
			{Key: "notes", Label: "Notes", Kind: Textarea{Rows: 3}},
		},
		DefaultSort: "-updated",
		Expand:      []string{"user", "test"},
	}
}

func pagesCollection() *Collection {
	return &Collection{
		Name:  Pages,
		Label: "Pages",
		Columns: []Column{
			{Key: "label", Header: "Label"},
			{Key: "target", Header: "Link", Render: func(rec record.Record, _ *time.Location) string {
				return orDash(EffectiveLink(rec))
			}},
			{Key: "sort_order", Header: "Order"},
			{Key: "visible", Header: "Visible"},
		},
		Fields: []Field{
			{Key: "label", Label: "Label", Kind: Text{}, Required: true},
			{Key: "path", Label: "Internal path", Kind: Text{Placeholder: "/tests"}},
			{Key: "external_url", Label: "External URL", Kind: Text{Placeholder: "https://"},
				Help: "Takes precedence over the internal path when both are set."},
			{Key: "sort_order", Label: "Sort order", Kind: Number{Step: "1"}},
			{Key: "visible", Label: "Visible", Kind: Checkbox{}},
			{Key: "parent", Label: "Parent", Kind: Relation{Collection: Pages, LabelPath: "label"}},
			{Key: "published_at", Label: "Published at", Kind: DateTime{}},
		},
		SearchFields: []string{"label", "path"},
		DefaultSort:  "sort_order,label",
		Expand:       []string{"parent"},
	}
}

// EffectiveLink is where a navigation entry points. The external URL wins when
// both it and the internal path are set.
func EffectiveLink(rec record.Record) string {
	if u := rec.String("external_url"); u != "" {
		return u
	}
	return rec.String("path")
}

func teamCollection() *Collection {
	return &Collection{
		Name:  Team,
		Label: "Team",
		Columns: []Column{
			{Key: "name", Header: "Name"},
			{Key: "role", Header: "Role"},
			{Key: "specialties", Header: "Specialties"},
		},
		Fields: []Field{
			{Key: "name", Label: "Name", Kind: Text{}, Required: true},
			{Key: "role", Label: "Role", Kind: Text{Placeholder: "Consultant pathologist"}},
			{Key: "bio", Label: "Bio", Kind: Textarea{Rows: 6}},
			{Key: "specialties", Label: "Specialties", Kind: MultiSelect{Choices: []Choice{
				{Value: "pathology", Label: "Pathology"},
				{Value: "radiology", Label: "Radiology"},
				{Value: "phlebotomy", Label: "Phlebotomy"},
				{Value: "cardiology", Label: "Cardiology"},
			}}},
			{Key: "photo", Label: "Photo", Kind: File{MIME: "image/*"}},
			{Key: "sort_order", Label: "Sort order", Kind: Number{Step: "1"}},
		},
		SearchFields: []string{"name", "role"},
		DefaultSort:  "-updated",
	}
}
