package filetype

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDetectType(t *testing.T) {
	tests := []struct {
		name   string
		prefix []byte
		want   string
	}{
		{"pdf", []byte("%PDF-1.7\n%stuff"), "application/pdf"},
		{"jpeg", []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10, 'J', 'F', 'I', 'F'}, "image/jpeg"},
		{"png", []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A, 0x00, 0x00}, "image/png"},
		{"gif87a", []byte("GIF87a.........."), "image/gif"},
		{"gif89a", []byte("GIF89a.........."), "image/gif"},
		{"webp", []byte{'R', 'I', 'F', 'F', 0x24, 0x00, 0x00, 0x00, 'W', 'E', 'B', 'P', 'V', 'P', '8', ' '}, "image/webp"},
		{"riff without webp tag", []byte("RIFF....WAVEfmt "), ""},
		{"elf executable", []byte{0x7F, 'E', 'L', 'F', 0x02, 0x01, 0x01, 0x00}, ""},
		{"windows executable", []byte{'M', 'Z', 0x90, 0x00, 0x03, 0x00}, ""},
		{"too short", []byte{0xFF, 0xD8}, ""},
		{"empty", nil, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DetectType(tt.prefix))
		})
	}
}

func TestDetect_MatchingDeclaration(t *testing.T) {
	res := Detect([]byte("%PDF-1.4"), "application/pdf")
	assert.True(t, res.Valid)
	assert.Equal(t, "application/pdf", res.DetectedType)
	assert.NoError(t, res.Err)
}

func TestDetect_JpgAlias(t *testing.T) {
	res := Detect([]byte{0xFF, 0xD8, 0xFF, 0xE1}, "image/jpg")
	assert.True(t, res.Valid)
	assert.Equal(t, "image/jpeg", res.DetectedType)
}

func TestDetect_Mismatch(t *testing.T) {
	// Stored bytes are JPEG but the client declared a PDF.
	res := Detect([]byte{0xFF, 0xD8, 0xFF, 0xE0}, "application/pdf")
	assert.False(t, res.Valid)
	assert.Equal(t, "image/jpeg", res.DetectedType)
	assert.ErrorContains(t, res.Err, "mismatch")
}

func TestDetect_UnrecognizedPrefix(t *testing.T) {
	res := Detect([]byte{'M', 'Z', 0x90, 0x00}, "application/pdf")
	assert.False(t, res.Valid)
	assert.Empty(t, res.DetectedType)
	assert.Error(t, res.Err)
}
