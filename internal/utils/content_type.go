package utils

import "strings"

var contentTypeExtensions = []struct {
	needles   []string
	extension string
}{
	{[]string{"jpeg", "jpg"}, "jpg"},
	{[]string{"png"}, "png"},
	{[]string{"svg"}, "svg"},
	{[]string{"gif"}, "gif"},
	{[]string{"pdf"}, "pdf"},
	{[]string{"spreadsheet", "excel", "xls"}, "xlsx"},
	{[]string{"presentation", "powerpoint", "ppt"}, "pptx"},
	{[]string{"word", "msword", "doc"}, "docx"},
	{[]string{"text/plain"}, "txt"},
	{[]string{"text/csv", "csv"}, "csv"},
	{[]string{"html"}, "html"},
	{[]string{"zip", "compressed"}, "zip"},
	{[]string{"webp"}, "webp"},
	{[]string{"tiff"}, "tiff"},
	{[]string{"heif", "heic"}, "heic"},
	{[]string{"json"}, "json"},
	{[]string{"xml"}, "xml"},
	{[]string{"calendar"}, "ics"},
	{[]string{"vcard"}, "vcf"},
	{[]string{"message/rfc822"}, "eml"},
	{[]string{"rtf"}, "rtf"},
}

// GetFileExtensionFromContentType maps a MIME type to a bare file extension,
// "bin" when nothing matches.
func GetFileExtensionFromContentType(contentType string) string {
	contentType = strings.ToLower(contentType)
	if i := strings.Index(contentType, ";"); i >= 0 {
		contentType = contentType[:i]
	}

	for _, candidate := range contentTypeExtensions {
		for _, needle := range candidate.needles {
			if strings.Contains(contentType, needle) {
				return candidate.extension
			}
		}
	}
	return "bin"
}
