package attachments

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeFilename(t *testing.T) {
	cases := map[string]string{
		"My Résumé (final)!.pdf": "My_Resume_final_.pdf",
		"report.pdf":             "report.pdf",
		"  __hello__  ":          "hello",
		"a   b///c.txt":          "a_b_c.txt",
		"naïve-café.tar.gz":      "naive-cafe.tar.gz",
		"日本語.docx":               ".docx",
		"":                       "attachment",
		"!!!":                    "attachment",
		"ﬁle.txt":                "file.txt",
	}
	for in, want := range cases {
		assert.Equal(t, want, SanitizeFilename(in), "input %q", in)
	}
}

func TestSanitizeFilename_TruncatesKeepingExtension(t *testing.T) {
	name := strings.Repeat("a", 400) + ".pdf"
	out := SanitizeFilename(name)

	assert.Len(t, out, 255)
	assert.True(t, strings.HasSuffix(out, ".pdf"))
}

func TestSafetyFlags(t *testing.T) {
	assert.Empty(t, SafetyFlags("report.pdf", "application/pdf"))
	assert.Equal(t, []string{FlagExecutable}, SafetyFlags("setup.exe", "application/octet-stream"))
	assert.Equal(t, []string{FlagMacroEnabled}, SafetyFlags("budget.xlsm", "application/vnd.ms-excel.sheet.macroEnabled.12"))
	assert.Equal(t, []string{FlagArchive}, SafetyFlags("photos.zip", "application/zip"))
	assert.Equal(t, []string{FlagExecutable, FlagDoubleExtension}, SafetyFlags("Invoice.PDF.scr", ""))
}

func TestStorageKey(t *testing.T) {
	now := time.Date(2024, 2, 9, 8, 0, 0, 0, time.UTC)
	key := StorageKey("user_1", "a.pdf", now)

	assert.Regexp(t, `^attachments/user_1/2024/02/\d+-[0-9a-f]{8}-a\.pdf$`, key)
	assert.NotEqual(t, key, StorageKey("user_1", "a.pdf", now))
}
