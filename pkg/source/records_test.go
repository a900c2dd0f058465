package source

import (
	"encoding/json"
	"testing"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/matzehuels/stemma/pkg/errors"
	"github.com/matzehuels/stemma/pkg/family"
)

func TestParseDate(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"", "", false},
		{"  ", "", false},
		{"1950-03-14", "1950-03-14", false},
		{"1950-03-14T00:00:00.000Z", "1950-03-14", false},
		{"1950-03-14T05:00:00+02:00", "1950-03-14", false},
		{"1950-03-14T10:11:12", "1950-03-14", false},
		{"1950-03-14 10:11:12", "1950-03-14", false},
		{"14/03/1950", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			d, err := ParseDate(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseDate(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			got := ""
			if !d.IsZero() {
				got = d.Format("2006-01-02")
			}
			if got != tt.want {
				t.Errorf("ParseDate(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestPersonRecordJSON(t *testing.T) {
	data := `{
		"person_id": 7, "tree_id": 3, "first_name": "Anna", "last_name": "Berg",
		"gender": "female", "date_of_birth": "1940-05-01T00:00:00.000Z",
		"date_of_death": null, "is_alive": 1, "profile_photo": "/uploads/a.jpg"
	}`
	var rec PersonRecord
	if err := json.Unmarshal([]byte(data), &rec); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	ps, err := Persons([]PersonRecord{rec})
	if err != nil {
		t.Fatalf("Persons: %v", err)
	}
	p := ps[0]
	if p.ID != 7 || p.FirstName != "Anna" || p.Gender != family.GenderFemale {
		t.Errorf("person = %+v", p)
	}
	if !p.Alive || !p.DeathDate.IsZero() || p.BirthDate.Year() != 1940 {
		t.Errorf("dates/alive = %v %v %v", p.BirthDate, p.DeathDate, p.Alive)
	}
	if p.Photo != "/uploads/a.jpg" {
		t.Errorf("Photo = %q", p.Photo)
	}
}

func TestPersonRecordYAML(t *testing.T) {
	data := `
person_id: 2
first_name: Ben
gender: Male
date_of_birth: 1938-11-02
date_of_death: ""
is_alive: "0"
`
	var rec PersonRecord
	if err := yaml.Unmarshal([]byte(data), &rec); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if rec.DateOfBirth.Year() != 1938 || !rec.DateOfDeath.IsZero() || bool(rec.IsAlive) {
		t.Errorf("record = %+v", rec)
	}
}

func TestBoolDecoding(t *testing.T) {
	tests := []struct {
		in   string
		want Bool
		ok   bool
	}{
		{"true", true, true},
		{"false", false, true},
		{"1", true, true},
		{"0", false, true},
		{`"1"`, true, true},
		{`"true"`, true, true},
		{"null", false, true},
		{"2", false, false},
		{`"yes"`, false, false},
	}
	for _, tt := range tests {
		var b Bool
		err := json.Unmarshal([]byte(tt.in), &b)
		if (err == nil) != tt.ok {
			t.Errorf("Unmarshal(%s) error = %v", tt.in, err)
			continue
		}
		if b != tt.want {
			t.Errorf("Unmarshal(%s) = %v, want %v", tt.in, b, tt.want)
		}
	}
}

func TestRecordValidation(t *testing.T) {
	tests := []struct {
		name string
		run  func() error
	}{
		{"person without id", func() error {
			_, err := Persons([]PersonRecord{{FirstName: "A"}})
			return err
		}},
		{"person without first name", func() error {
			_, err := Persons([]PersonRecord{{ID: 1}})
			return err
		}},
		{"unknown gender", func() error {
			_, err := Persons([]PersonRecord{{ID: 1, FirstName: "A", Gender: "robot"}})
			return err
		}},
		{"edge without child", func() error {
			_, err := Relationships([]RelationshipRecord{{ParentID: 1}})
			return err
		}},
		{"unknown edge type", func() error {
			_, err := Relationships([]RelationshipRecord{{ParentID: 1, ChildID: 2, Type: "cousin"}})
			return err
		}},
		{"marriage without spouse", func() error {
			_, err := Marriages([]MarriageRecord{{Spouse1ID: 1}})
			return err
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.run()
			if !errors.Is(err, errors.ErrCodeInvalidFormat) {
				t.Errorf("error = %v, want INVALID_FORMAT", err)
			}
		})
	}
}

func TestValidationNamesRecord(t *testing.T) {
	_, err := Persons([]PersonRecord{{ID: 1, FirstName: "A"}, {ID: 2}})
	if err == nil || errors.UserMessage(err) != "persons[1] is invalid" {
		t.Errorf("error = %v", err)
	}
}

func TestUnsafePhotoIsDropped(t *testing.T) {
	ps, err := Persons([]PersonRecord{{ID: 1, FirstName: "A", Photo: "../../etc/passwd"}})
	if err != nil {
		t.Fatal(err)
	}
	if ps[0].Photo != "" {
		t.Errorf("Photo = %q, want empty", ps[0].Photo)
	}
}

func TestRelationshipDefaults(t *testing.T) {
	es, err := Relationships([]RelationshipRecord{{ParentID: 1, ChildID: 2}, {ParentID: 1, ChildID: 3, Type: "adoptive"}})
	if err != nil {
		t.Fatal(err)
	}
	if es[0].Type != family.Biological || es[1].Type != family.Adoptive {
		t.Errorf("types = %v %v", es[0].Type, es[1].Type)
	}
}

func TestDateMarshal(t *testing.T) {
	b, _ := json.Marshal(Date{})
	if string(b) != "null" {
		t.Errorf("zero date = %s", b)
	}
	b, _ = json.Marshal(Date{time.Date(2001, 2, 3, 4, 5, 6, 0, time.UTC)})
	if string(b) != `"2001-02-03"` {
		t.Errorf("date = %s", b)
	}
}
