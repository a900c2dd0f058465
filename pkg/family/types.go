package family

import (
	"fmt"
	"strings"
	"time"
)

// DefaultTreeName is used when a tree has no display name.
const DefaultTreeName = "Family Tree"

// Gender is the recorded gender of a person. It only affects coloring.
type Gender string

const (
	GenderMale   Gender = "Male"
	GenderFemale Gender = "Female"
	GenderOther  Gender = "Other"
)

// ParseGender maps a case-insensitive gender name to a Gender.
// Unknown or empty values map to GenderOther.
func ParseGender(s string) Gender {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "male", "m":
		return GenderMale
	case "female", "f":
		return GenderFemale
	default:
		return GenderOther
	}
}

// RelationshipType tags a parent-child edge.
type RelationshipType string

const (
	Biological RelationshipType = "Biological"
	Adoptive   RelationshipType = "Adoptive"
	Step       RelationshipType = "Step"
	Foster     RelationshipType = "Foster"
)

// ParseRelationshipType maps a case-insensitive name to a RelationshipType,
// defaulting to Biological.
func ParseRelationshipType(s string) RelationshipType {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "adoptive", "adopted":
		return Adoptive
	case "step":
		return Step
	case "foster":
		return Foster
	default:
		return Biological
	}
}

// Tree is the header of one user-owned family tree.
type Tree struct {
	ID          int64  `json:"tree_id"`
	Name        string `json:"tree_name"`
	Description string `json:"description,omitempty"`
}

// DisplayName returns the tree name, or DefaultTreeName when it is blank.
func (t Tree) DisplayName() string {
	if name := strings.TrimSpace(t.Name); name != "" {
		return name
	}
	return DefaultTreeName
}

// Person is a member of a tree. Zero dates mean the date is unknown.
type Person struct {
	ID         int64     `json:"person_id"`
	TreeID     int64     `json:"tree_id,omitempty"`
	FirstName  string    `json:"first_name"`
	MiddleName string    `json:"middle_name,omitempty"`
	LastName   string    `json:"last_name,omitempty"`
	MaidenName string    `json:"maiden_name,omitempty"`
	Gender     Gender    `json:"gender"`
	BirthDate  time.Time `json:"date_of_birth,omitzero"`
	DeathDate  time.Time `json:"date_of_death,omitzero"`
	Alive      bool      `json:"is_alive"`
	BirthPlace string    `json:"birth_place,omitempty"`
	DeathPlace string    `json:"death_place,omitempty"`
	Occupation string    `json:"occupation,omitempty"`
	Bio        string    `json:"bio,omitempty"`
	Photo      string    `json:"profile_photo,omitempty"`
}

// DisplayName is the compact node label: the first name only.
func (p *Person) DisplayName() string {
	return p.FirstName
}

// FullName joins the first, middle and last names.
func (p *Person) FullName() string {
	parts := make([]string, 0, 3)
	for _, s := range []string{p.FirstName, p.MiddleName, p.LastName} {
		if s = strings.TrimSpace(s); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, " ")
}

// Initials returns the first letter of the first name followed by the first
// letter of the last name, if any.
func (p *Person) Initials() string {
	var b strings.Builder
	for _, s := range []string{p.FirstName, p.LastName} {
		for _, r := range strings.TrimSpace(s) {
			b.WriteRune(r)
			break
		}
	}
	return strings.ToUpper(b.String())
}

// Lifespan formats the birth and death years as "1950 - 2010". A missing
// birth or death date shows "?"; a living person shows "Present".
func (p *Person) Lifespan() string {
	birth := "?"
	if !p.BirthDate.IsZero() {
		birth = fmt.Sprint(p.BirthDate.Year())
	}
	death := "?"
	switch {
	case p.Alive:
		death = "Present"
	case !p.DeathDate.IsZero():
		death = fmt.Sprint(p.DeathDate.Year())
	}
	return birth + " - " + death
}

// HasPhoto reports whether the person has a photo reference.
func (p *Person) HasPhoto() bool {
	return strings.TrimSpace(p.Photo) != ""
}

// ParentChildEdge records that Parent is a parent of Child.
type ParentChildEdge struct {
	ID     int64            `json:"relationship_id,omitempty"`
	Parent int64            `json:"parent_id"`
	Child  int64            `json:"child_id"`
	Type   RelationshipType `json:"relationship_type"`
}

// Marriage is an unordered pair of spouses.
type Marriage struct {
	ID          int64     `json:"marriage_id,omitempty"`
	Spouse1     int64     `json:"spouse1_id"`
	Spouse2     int64     `json:"spouse2_id"`
	Date        time.Time `json:"marriage_date,omitzero"`
	Place       string    `json:"marriage_place,omitempty"`
	DivorceDate time.Time `json:"divorce_date,omitzero"`
	Current     bool      `json:"is_current"`
	Kind        string    `json:"marriage_type,omitempty"`
}

// Names reports whether id is one of the spouses.
func (m Marriage) Names(id int64) bool {
	return m.Spouse1 == id || m.Spouse2 == id
}

// Other returns the spouse opposite id. It returns false if id is not part
// of the marriage.
func (m Marriage) Other(id int64) (int64, bool) {
	switch id {
	case m.Spouse1:
		return m.Spouse2, true
	case m.Spouse2:
		return m.Spouse1, true
	}
	return 0, false
}
