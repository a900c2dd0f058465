package source

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/matzehuels/stemma/pkg/errors"
	"github.com/matzehuels/stemma/pkg/family"
)

var recordValidate = validator.New()

// Date is a calendar date as the backend sends it: "YYYY-MM-DD", an
// RFC 3339 timestamp, an empty string or null.
type Date struct{ time.Time }

var dateLayouts = []string{
	"2006-01-02",
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// ParseDate parses s in any of the accepted layouts. Blank input is the zero
// date.
func ParseDate(s string) (Date, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Date{}, nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return Date{t}, nil
		}
	}
	return Date{}, fmt.Errorf("invalid date %q", s)
}

func (d *Date) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		*d = Date{}
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("date must be a string: %s", b)
	}
	v, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = v
	return nil
}

func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(d.Format("2006-01-02"))
}

func (d *Date) UnmarshalYAML(n *yaml.Node) error {
	if n.Tag == "!!null" {
		*d = Date{}
		return nil
	}
	v, err := ParseDate(n.Value)
	if err != nil {
		return err
	}
	*d = v
	return nil
}

// Bool accepts JSON booleans as well as the 0/1 integers and strings MySQL
// drivers produce.
type Bool bool

func parseBool(s string) (Bool, error) {
	switch strings.ToLower(strings.Trim(strings.TrimSpace(s), `"`)) {
	case "", "null", "0", "false":
		return false, nil
	case "1", "true":
		return true, nil
	}
	return false, fmt.Errorf("invalid boolean %s", s)
}

func (b *Bool) UnmarshalJSON(data []byte) error {
	v, err := parseBool(string(data))
	if err != nil {
		return err
	}
	*b = v
	return nil
}

func (b *Bool) UnmarshalYAML(n *yaml.Node) error {
	v, err := parseBool(n.Value)
	if err != nil {
		return err
	}
	*b = v
	return nil
}

// TreeRecord is the wire form of a tree header.
type TreeRecord struct {
	ID          int64  `json:"tree_id" yaml:"tree_id" validate:"gte=0"`
	Name        string `json:"tree_name" yaml:"tree_name" validate:"max=255"`
	Description string `json:"description" yaml:"description"`
}

// PersonRecord is the wire form of a person.
type PersonRecord struct {
	ID          int64  `json:"person_id" yaml:"person_id" validate:"required,gt=0"`
	TreeID      int64  `json:"tree_id" yaml:"tree_id" validate:"gte=0"`
	FirstName   string `json:"first_name" yaml:"first_name" validate:"required,max=100"`
	MiddleName  string `json:"middle_name" yaml:"middle_name" validate:"max=100"`
	LastName    string `json:"last_name" yaml:"last_name" validate:"max=100"`
	MaidenName  string `json:"maiden_name" yaml:"maiden_name" validate:"max=100"`
	Gender      string `json:"gender" yaml:"gender" validate:"omitempty,oneof=Male Female Other male female other"`
	DateOfBirth Date   `json:"date_of_birth" yaml:"date_of_birth"`
	DateOfDeath Date   `json:"date_of_death" yaml:"date_of_death"`
	IsAlive     Bool   `json:"is_alive" yaml:"is_alive"`
	BirthPlace  string `json:"birth_place" yaml:"birth_place"`
	DeathPlace  string `json:"death_place" yaml:"death_place"`
	Occupation  string `json:"occupation" yaml:"occupation"`
	Bio         string `json:"bio" yaml:"bio"`
	Photo       string `json:"profile_photo" yaml:"profile_photo"`
}

// RelationshipRecord is the wire form of a parent-child edge.
type RelationshipRecord struct {
	ID       int64  `json:"relationship_id" yaml:"relationship_id" validate:"gte=0"`
	ParentID int64  `json:"parent_id" yaml:"parent_id" validate:"required,gt=0"`
	ChildID  int64  `json:"child_id" yaml:"child_id" validate:"required,gt=0"`
	Type     string `json:"relationship_type" yaml:"relationship_type" validate:"omitempty,oneof=Biological Adoptive Step Foster biological adoptive step foster"`
}

// MarriageRecord is the wire form of a marriage.
type MarriageRecord struct {
	ID          int64  `json:"marriage_id" yaml:"marriage_id" validate:"gte=0"`
	Spouse1ID   int64  `json:"spouse1_id" yaml:"spouse1_id" validate:"required,gt=0"`
	Spouse2ID   int64  `json:"spouse2_id" yaml:"spouse2_id" validate:"required,gt=0"`
	Date        Date   `json:"marriage_date" yaml:"marriage_date"`
	Place       string `json:"marriage_place" yaml:"marriage_place"`
	DivorceDate Date   `json:"divorce_date" yaml:"divorce_date"`
	IsCurrent   Bool   `json:"is_current" yaml:"is_current"`
	Type        string `json:"marriage_type" yaml:"marriage_type"`
}

func (r TreeRecord) tree() family.Tree {
	return family.Tree{ID: r.ID, Name: r.Name, Description: r.Description}
}

func (r PersonRecord) person() family.Person {
	p := family.Person{
		ID:         r.ID,
		TreeID:     r.TreeID,
		FirstName:  strings.TrimSpace(r.FirstName),
		MiddleName: r.MiddleName,
		LastName:   r.LastName,
		MaidenName: r.MaidenName,
		Gender:     family.ParseGender(r.Gender),
		BirthDate:  r.DateOfBirth.Time,
		DeathDate:  r.DateOfDeath.Time,
		Alive:      bool(r.IsAlive),
		BirthPlace: r.BirthPlace,
		DeathPlace: r.DeathPlace,
		Occupation: r.Occupation,
		Bio:        r.Bio,
	}
	// An unusable photo reference degrades to initials.
	if r.Photo != "" && errors.ValidatePhotoPath(r.Photo) == nil {
		p.Photo = r.Photo
	}
	return p
}

func (r RelationshipRecord) edge() family.ParentChildEdge {
	return family.ParentChildEdge{
		ID:     r.ID,
		Parent: r.ParentID,
		Child:  r.ChildID,
		Type:   family.ParseRelationshipType(r.Type),
	}
}

func (r MarriageRecord) marriage() family.Marriage {
	return family.Marriage{
		ID:          r.ID,
		Spouse1:     r.Spouse1ID,
		Spouse2:     r.Spouse2ID,
		Date:        r.Date.Time,
		Place:       r.Place,
		DivorceDate: r.DivorceDate.Time,
		Current:     bool(r.IsCurrent),
		Kind:        r.Type,
	}
}

// validateAll checks every record and names the first bad one.
func validateAll[T any](kind string, recs []T) error {
	for i := range recs {
		if err := recordValidate.Struct(recs[i]); err != nil {
			return errors.Wrap(errors.ErrCodeInvalidFormat, err, "%s[%d] is invalid", kind, i)
		}
	}
	return nil
}

func convert[T, U any](recs []T, fn func(T) U) []U {
	out := make([]U, len(recs))
	for i, r := range recs {
		out[i] = fn(r)
	}
	return out
}

// Persons converts validated person records.
func Persons(recs []PersonRecord) ([]family.Person, error) {
	if err := validateAll("persons", recs); err != nil {
		return nil, err
	}
	return convert(recs, PersonRecord.person), nil
}

// Relationships converts validated relationship records.
func Relationships(recs []RelationshipRecord) ([]family.ParentChildEdge, error) {
	if err := validateAll("relationships", recs); err != nil {
		return nil, err
	}
	return convert(recs, RelationshipRecord.edge), nil
}

// Marriages converts validated marriage records.
func Marriages(recs []MarriageRecord) ([]family.Marriage, error) {
	if err := validateAll("marriages", recs); err != nil {
		return nil, err
	}
	return convert(recs, MarriageRecord.marriage), nil
}

// Tree converts a validated tree record.
func Tree(rec TreeRecord) (family.Tree, error) {
	if err := recordValidate.Struct(rec); err != nil {
		return family.Tree{}, errors.Wrap(errors.ErrCodeInvalidFormat, err, "tree is invalid")
	}
	return rec.tree(), nil
}

// FormatID renders an id for URLs and messages.
func FormatID(id int64) string { return strconv.FormatInt(id, 10) }
