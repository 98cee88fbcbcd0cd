package content

import (
	"errors"
	"fmt"
	"strings"
)

// Kind is one of the six content categories the admin console manages.
// The set is closed: values outside [Blogs, Testimonials] are never produced
// by ParseKind or Kinds.
type Kind int

const (
	Blogs Kind = iota
	Services
	Works
	Careers
	Contact
	Testimonials

	kindCount
)

// Backing collection names.
const (
	CollectionBlogs        = "blogs"
	CollectionServices     = "services"
	CollectionWorks        = "works"
	CollectionCareers      = "careerApplications"
	CollectionContact      = "contactRequests"
	CollectionTestimonials = "testimonials"
	// CollectionFeedback holds low-rating reviews from the public site; the
	// console does not manage it.
	CollectionFeedback = "feedback"
)

// Testimonial moderation states.
const (
	StatusPending  = "pending"
	StatusApproved = "approved"
)

// BlogCategories is the fixed category enum for blog posts.
var BlogCategories = []string{"Case Studies", "Use Case", "Company News", "Industry Insights"}

// Route is what the Collection Router resolves a kind to.
type Route struct {
	Kind       Kind
	Key        string // navigation key
	Label      string
	Collection string
	Fields     []Field
	TitleField string
	// DetailFields are tried in order for the list's detail column; the first
	// non-empty one is shown.
	DetailFields []string
	// Public kinds are readable from the public site.
	Public bool
}

// Field describes one input of the upsert form.
type Field struct {
	Name        string    `json:"name"`
	Label       string    `json:"label"`
	Type        FieldType `json:"type"`
	Options     []string  `json:"options,omitempty"`
	Placeholder string    `json:"placeholder,omitempty"`
	// Rule is a go-playground/validator tag applied when the field has a value.
	Rule string `json:"-"`
}

type FieldType string

const (
	FieldText     FieldType = "text"
	FieldTextarea FieldType = "textarea"
	FieldSelect   FieldType = "select"
	FieldEmail    FieldType = "email"
	FieldNumber   FieldType = "number"
	// FieldImage accepts a URL or an uploaded image encoded as a data URI.
	FieldImage FieldType = "image"
)

var routes = [kindCount]Route{
	Blogs: {
		Kind: Blogs, Key: "blogs", Label: "Blogs", Collection: CollectionBlogs, Public: true,
		Fields: []Field{
			{Name: "title", Label: "Blog Title", Type: FieldText},
			{Name: "category", Label: "Category", Type: FieldSelect, Options: BlogCategories, Rule: "oneof='Case Studies' 'Use Case' 'Company News' 'Industry Insights'"},
			{Name: "author", Label: "Author", Type: FieldText},
			{Name: "imageUrl", Label: "Image URL (Paste Link or Upload below)", Type: FieldImage, Placeholder: "https://..."},
			{Name: "description", Label: "Description", Type: FieldTextarea},
		},
		TitleField:   "title",
		DetailFields: []string{"category", "author"},
	},
	Services: {
		Kind: Services, Key: "services", Label: "Services", Collection: CollectionServices, Public: true,
		Fields: []Field{
			{Name: "title", Label: "Service Name", Type: FieldText},
			{Name: "iconUrl", Label: "Icon URL (PNG)", Type: FieldText, Placeholder: "e.g., https://.../icon.png"},
			{Name: "description", Label: "Description", Type: FieldTextarea},
		},
		TitleField:   "title",
		DetailFields: []string{"category", "author"},
	},
	Works: {
		Kind: Works, Key: "ourwork", Label: "Our Work", Collection: CollectionWorks, Public: true,
		Fields: []Field{
			{Name: "title", Label: "Domain / Industry Title", Type: FieldText},
			{Name: "imageUrl", Label: "Image URL (Paste Link or Upload below)", Type: FieldImage, Placeholder: "https://..."},
			{Name: "description", Label: "Description", Type: FieldTextarea},
		},
		TitleField:   "title",
		DetailFields: []string{"category", "author"},
	},
	Careers: {
		Kind: Careers, Key: "careers", Label: "Careers", Collection: CollectionCareers,
		Fields: []Field{
			{Name: "name", Label: "Full Name", Type: FieldText},
			{Name: "email", Label: "Email Address", Type: FieldEmail, Rule: "email"},
			{Name: "role", Label: "Applying for Role", Type: FieldText},
		},
		TitleField:   "name",
		DetailFields: []string{"role"},
	},
	Contact: {
		Kind: Contact, Key: "contact", Label: "Contact", Collection: CollectionContact,
		Fields: []Field{
			{Name: "companyName", Label: "Company Name", Type: FieldText},
			{Name: "email", Label: "Email", Type: FieldEmail, Rule: "email"},
			{Name: "message", Label: "Project Details / Message", Type: FieldTextarea},
		},
		TitleField:   "companyName",
		DetailFields: []string{"email"},
	},
	Testimonials: {
		Kind: Testimonials, Key: "testimonials", Label: "Testimonials", Collection: CollectionTestimonials, Public: true,
		Fields: []Field{
			{Name: "name", Label: "Client Name", Type: FieldText},
			{Name: "companyName", Label: "Company Name", Type: FieldText},
			{Name: "jobTitle", Label: "Job Title", Type: FieldText},
			{Name: "rating", Label: "Rating (1-5)", Type: FieldNumber, Rule: "min=1,max=5"},
			{Name: "testimonialText", Label: "Testimonial Text", Type: FieldTextarea},
			{Name: "status", Label: "Status", Type: FieldSelect, Options: []string{StatusPending, StatusApproved}, Rule: "oneof=pending approved"},
		},
		TitleField:   "name",
		DetailFields: []string{"companyName", "jobTitle"},
	},
}

// Kinds returns the navigation order.
func Kinds() []Kind {
	out := make([]Kind, 0, kindCount)
	for k := Blogs; k < kindCount; k++ {
		out = append(out, k)
	}
	return out
}

// Route resolves a kind to its backing collection and form schema.
func (k Kind) Route() Route { return routes[k] }

// Collection is shorthand for k.Route().Collection.
func (k Kind) Collection() string { return routes[k].Collection }

func (k Kind) String() string { return routes[k].Key }

// Field looks up a field descriptor by name.
func (k Kind) Field(name string) (Field, bool) {
	for _, f := range routes[k].Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// Moderated reports whether documents of this kind carry a pending/approved status.
func (k Kind) Moderated() bool { return k == Testimonials }

// ErrUnknownKind is returned by ParseKind for keys outside the navigation.
var ErrUnknownKind = errors.New("unknown content kind")

// ParseKind maps an external key (navigation key, collection name or a
// legacy alias, case-insensitive) to a kind.
func ParseKind(key string) (Kind, error) {
	s := strings.ToLower(strings.TrimSpace(key))
	for k := Blogs; k < kindCount; k++ {
		r := routes[k]
		if s == r.Key || s == strings.ToLower(r.Collection) {
			return k, nil
		}
	}
	switch s {
	case "posts", "blog":
		return Blogs, nil
	case "portfolio", "works":
		return Works, nil
	}
	return 0, fmt.Errorf("%w %q", ErrUnknownKind, key)
}

// MarshalText lets kinds travel as their navigation key in JSON.
func (k Kind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

func (k *Kind) UnmarshalText(b []byte) error {
	v, err := ParseKind(string(b))
	if err != nil {
		return err
	}
	*k = v
	return nil
}
