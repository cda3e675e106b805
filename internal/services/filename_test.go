package services

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAllowedFile_EveryAllowedExtension(t *testing.T) {
	for ext := range AllowedExtensions {
		assert.True(t, AllowedFile("file."+ext), ext)
		assert.True(t, AllowedFile("FILE."+strings.ToUpper(ext)), ext)
	}
}

func TestAllowedFile_Rejected(t *testing.T) {
	for _, name := range []string{
		"malware.exe", "script.sh", "archive.tar", "archive.tar.gz", "page.html",
		"noextension", "trailingdot.", "txt", "image.png.exe", "",
	} {
		assert.False(t, AllowedFile(name), name)
	}
}

func TestAllowedFile_DoubleExtensionUsesLast(t *testing.T) {
	assert.True(t, AllowedFile("evil.exe.txt"))
	assert.True(t, AllowedFile(".json"))
}

func TestExtension(t *testing.T) {
	assert.Equal(t, "txt", Extension("notes.TXT"))
	assert.Equal(t, "gz", Extension("a.tar.gz"))
	assert.Equal(t, "", Extension("README"))
}

func TestSecureFilename(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"notes.txt", "notes.txt"},
		{"My cool movie.mov", "My_cool_movie.mov"},
		{"../../../etc/passwd", "etc_passwd"},
		{`C:\Users\bob\report.pdf`, "C_Users_bob_report.pdf"},
		{"i contain cool \xc3\xbcml\xc3\xa4uts.txt", "i_contain_cool_umlauts.txt"},
		{"  spaced   out .csv ", "spaced_out_.csv"},
		{"..hidden.json", "hidden.json"},
		{"отчёт.pdf", "pdf"},
		{"<script>.txt", "script.txt"},
		{"...", ""},
	}

	for _, tc := range tests {
		assert.Equal(t, tc.want, SecureFilename(tc.in), tc.in)
	}
}
