package errors

import "testing"

func TestValidateTreeID(t *testing.T) {
	for _, id := range []int64{0, -1} {
		if err := ValidateTreeID(id); !Is(err, ErrCodeInvalidInput) {
			t.Errorf("ValidateTreeID(%d) = %v, want INVALID_INPUT", id, err)
		}
	}
	if err := ValidateTreeID(7); err != nil {
		t.Errorf("ValidateTreeID(7) = %v", err)
	}
}

func TestValidateURL(t *testing.T) {
	tests := []struct {
		input   string
		wantErr bool
	}{
		{"http://localhost:5000/api", false},
		{"https://family.example.com", false},
		{"", true},
		{"ftp://example.com", true},
		{"localhost:5000", true},
	}
	for _, tt := range tests {
		if err := ValidateURL(tt.input); (err != nil) != tt.wantErr {
			t.Errorf("ValidateURL(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
		}
	}
}

func TestValidatePhotoPath(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"rooted", "/uploads/anna.jpg", false},
		{"relative", "uploads/anna.jpg", false},
		{"absolute url", "https://cdn.example.com/a.png", false},

		{"empty", "", true},
		{"traversal", "/uploads/../../etc/passwd", true},
		{"backslash", "uploads\\a.jpg", true},
		{"control char", "a\x01.jpg", true},
		{"too long", "/" + string(make([]byte, 600)), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := ValidatePhotoPath(tt.input); (err != nil) != tt.wantErr {
				t.Errorf("ValidatePhotoPath(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
		})
	}
}

func TestValidateFilename(t *testing.T) {
	tests := []struct {
		input   string
		wantErr bool
	}{
		{"smith-family-tree-HD.jpg", false},
		{"", true},
		{"../tree.jpg", true},
		{"dir/tree.jpg", true},
		{".hidden", true},
	}
	for _, tt := range tests {
		if err := ValidateFilename(tt.input); (err != nil) != tt.wantErr {
			t.Errorf("ValidateFilename(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
		}
	}
}
