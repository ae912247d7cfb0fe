package validation

import (
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateName(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr error
	}{
		{name: "trims", input: "  report.pdf ", want: "report.pdf"},
		{name: "nfc", input: "Cafe\u0301", want: "Caf\u00e9"},
		{name: "empty", input: "   ", wantErr: ErrNameRequired},
		{name: "slash", input: "a/b", wantErr: ErrNameInvalid},
		{name: "backslash", input: `a\b`, wantErr: ErrNameInvalid},
		{name: "dot", input: ".", wantErr: ErrNameInvalid},
		{name: "dotdot", input: "..", wantErr: ErrNameInvalid},
		{name: "too long", input: strings.Repeat("a", 256), wantErr: ErrNameTooLong},
		{name: "max length", input: strings.Repeat("a", 255), want: strings.Repeat("a", 255)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ValidateName(tt.input)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDetectContentType(t *testing.T) {
	png := "\x89PNG\r\n\x1a\n" + strings.Repeat("\x00", 32)

	tests := []struct {
		name       string
		filename   string
		clientType string
		body       string
		want       string
	}{
		{name: "client type wins", filename: "a.bin", clientType: "image/jpeg", body: png, want: "image/jpeg"},
		{name: "strips params", filename: "a", clientType: "text/plain; charset=utf-8", body: "hi", want: "text/plain"},
		{name: "extension", filename: "notes.txt", clientType: "application/octet-stream", body: png, want: "text/plain"},
		{name: "sniffed", filename: "blob", clientType: "", body: png, want: "image/png"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, r, err := DetectContentType(tt.filename, tt.clientType, strings.NewReader(tt.body))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)

			// The returned reader must still produce every byte.
			data, err := io.ReadAll(r)
			require.NoError(t, err)
			assert.Equal(t, tt.body, string(data))
		})
	}
}

func TestValidateEmail(t *testing.T) {
	assert.NoError(t, ValidateEmail(""))
	assert.NoError(t, ValidateEmail("ana@example.com"))
	assert.Error(t, ValidateEmail("not-an-email"))
	assert.Error(t, ValidateEmail(strings.Repeat("a", 250)+"@x.io"))
}
