package mediatypes

import "testing"

func TestFormatKind(t *testing.T) {
	tests := []struct {
		format   Format
		expected Kind
	}{
		{FormatWebP, KindImage},
		{FormatAVIF, KindImage},
		{FormatAV1, KindVideo},
		{FormatVP9, KindVideo},
		{Format("flif"), KindOther},
	}

	for _, tt := range tests {
		t.Run(string(tt.format), func(t *testing.T) {
			if got := tt.format.Kind(); got != tt.expected {
				t.Errorf("Kind(%q) = %q, want %q", tt.format, got, tt.expected)
			}
		})
	}
}

func TestFormatExtension(t *testing.T) {
	tests := []struct {
		format   Format
		expected string
	}{
		{FormatWebP, ".webp"},
		{FormatAVIF, ".avif"},
		{FormatAV1, ".webm"},
		{FormatVP9, ".webm"},
		{Format("bogus"), ""},
	}

	for _, tt := range tests {
		if got := tt.format.Extension(); got != tt.expected {
			t.Errorf("Extension(%q) = %q, want %q", tt.format, got, tt.expected)
		}
	}
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		input    string
		expected Format
		ok       bool
	}{
		{"webp", FormatWebP, true},
		{"WEBP", FormatWebP, true},
		{"  avif ", FormatAVIF, true},
		{"av1", FormatAV1, true},
		{"vp9", FormatVP9, true},
		{"jpeg", "", false},
		{"", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, ok := ParseFormat(tt.input)
			if ok != tt.ok || got != tt.expected {
				t.Errorf("ParseFormat(%q) = (%q, %v), want (%q, %v)",
					tt.input, got, ok, tt.expected, tt.ok)
			}
		})
	}
}

func TestKindForMime(t *testing.T) {
	tests := []struct {
		mime     string
		expected Kind
	}{
		{"image/jpeg", KindImage},
		{"image/png", KindImage},
		{"image/gif", KindImage},
		{"IMAGE/JPEG", KindImage},
		{"video/mp4", KindVideo},
		{"video/quicktime", KindVideo},
		{"application/pdf", KindOther},
		{"image/svg+xml", KindOther},
		{"", KindOther},
	}

	for _, tt := range tests {
		t.Run(tt.mime, func(t *testing.T) {
			if got := KindForMime(tt.mime); got != tt.expected {
				t.Errorf("KindForMime(%q) = %q, want %q", tt.mime, got, tt.expected)
			}
		})
	}
}

func TestMaybeAnimated(t *testing.T) {
	if !MaybeAnimated("image/gif") {
		t.Error("Expected image/gif to be animatable")
	}
	if !MaybeAnimated("image/webp") {
		t.Error("Expected image/webp to be animatable")
	}
	if MaybeAnimated("image/jpeg") {
		t.Error("Expected image/jpeg not to be animatable")
	}
}

func TestMimeForPath(t *testing.T) {
	tests := []struct {
		path     string
		expected string
	}{
		{"/media/photo.jpg", "image/jpeg"},
		{"/media/photo.JPEG", "image/jpeg"},
		{"/media/anim.gif", "image/gif"},
		{"/media/clip.mp4", "video/mp4"},
		{"/media/clip.mkv", "video/x-matroska"},
		{"/media/notes.txt", ""},
		{"noextension", ""},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			if got := MimeForPath(tt.path); got != tt.expected {
				t.Errorf("MimeForPath(%q) = %q, want %q", tt.path, got, tt.expected)
			}
		})
	}
}
