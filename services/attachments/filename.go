package attachments

import (
	"path/filepath"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const (
	maxFilenameLength = 255
	fallbackFilename  = "attachment"
)

// SanitizeFilename reduces a name to [A-Za-z0-9._-] so it can be used in a
// storage key. Accented letters lose their marks first, so "é" becomes "e".
func SanitizeFilename(name string) string {
	folded, _, err := transform.String(
		transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC), name)
	if err != nil {
		folded = name
	}

	var b strings.Builder
	b.Grow(len(folded))
	lastUnderscore := false
	for _, r := range folded {
		if r < unicode.MaxASCII && (r == '.' || r == '-' || unicode.IsLetter(r) || unicode.IsDigit(r)) {
			b.WriteRune(r)
			lastUnderscore = false
			continue
		}
		if !lastUnderscore {
			b.WriteByte('_')
			lastUnderscore = true
		}
	}

	out := strings.Trim(b.String(), "_")
	if out == "" {
		return fallbackFilename
	}
	if len(out) > maxFilenameLength {
		ext := filepath.Ext(out)
		if len(ext) >= maxFilenameLength {
			ext = ""
		}
		out = out[:maxFilenameLength-len(ext)] + ext
	}
	return out
}

const (
	FlagExecutable      = "executable"
	FlagDoubleExtension = "double_extension"
	FlagMacroEnabled    = "macro_enabled"
	FlagArchive         = "archive"
)

var executableExtensions = map[string]bool{
	".exe": true, ".bat": true, ".cmd": true, ".com": true, ".scr": true, ".msi": true,
	".js": true, ".jse": true, ".vbs": true, ".vbe": true, ".ps1": true, ".jar": true,
	".sh": true, ".app": true, ".dll": true, ".lnk": true, ".hta": true, ".pif": true,
}

var macroExtensions = map[string]bool{
	".docm": true, ".dotm": true, ".xlsm": true, ".xltm": true, ".xlam": true,
	".pptm": true, ".potm": true, ".ppsm": true,
}

var archiveExtensions = map[string]bool{
	".zip": true, ".rar": true, ".7z": true, ".tar": true, ".gz": true, ".tgz": true,
	".bz2": true, ".xz": true, ".iso": true,
}

// SafetyFlags labels attachments a reader should treat with care. The flags
// are informational; nothing is blocked.
func SafetyFlags(filename, contentType string) []string {
	name := strings.ToLower(strings.TrimSpace(filename))
	contentType = strings.ToLower(contentType)
	ext := filepath.Ext(name)

	var flags []string
	if executableExtensions[ext] ||
		strings.Contains(contentType, "x-msdownload") ||
		strings.Contains(contentType, "x-executable") ||
		strings.Contains(contentType, "x-sh") {
		flags = append(flags, FlagExecutable)
	}

	// "invoice.pdf.exe": a document-looking name hiding the real type
	if ext != "" {
		inner := filepath.Ext(strings.TrimSuffix(name, ext))
		if inner != "" && len(inner) <= 5 && executableExtensions[ext] {
			flags = append(flags, FlagDoubleExtension)
		}
	}

	if macroExtensions[ext] || strings.Contains(contentType, "macroenabled") {
		flags = append(flags, FlagMacroEnabled)
	}

	if archiveExtensions[ext] ||
		strings.Contains(contentType, "zip") ||
		strings.Contains(contentType, "x-rar") ||
		strings.Contains(contentType, "x-7z") ||
		strings.Contains(contentType, "x-tar") ||
		strings.Contains(contentType, "gzip") {
		flags = append(flags, FlagArchive)
	}
	return flags
}
