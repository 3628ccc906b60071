package constants

import "strings"

// AllowedExtensions holds the file extensions accepted for purchase-order uploads.
var AllowedExtensions = map[string]struct{}{
	"pdf": {},
}

// DefaultMaxUploadMB caps a single uploaded document.
const DefaultMaxUploadMB = 20

// NormalizeExt lowercases and trims the dot from a file extension.
func NormalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

// AllowedFile reports whether filename carries an accepted extension.
func AllowedFile(filename string) bool {
	i := strings.LastIndex(filename, ".")
	if i < 0 {
		return false
	}
	_, ok := AllowedExtensions[NormalizeExt(filename[i:])]
	return ok
}
