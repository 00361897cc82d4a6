package transfer

import (
	"fmt"
	"net/url"
	"path"
	"strings"
	"unicode"

	"github.com/gabriel-vasile/mimetype"
	"github.com/jun/gophgallery/internal/adapter"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// audioTypes override whatever the provider reports; audio is routinely labelled as
// video/mp4 or application/octet-stream.
var audioTypes = map[string]string{
	".mp3":  "audio/mpeg",
	".m4a":  "audio/mp4",
	".aac":  "audio/aac",
	".wav":  "audio/wav",
	".flac": "audio/flac",
	".ogg":  "audio/ogg",
	".oga":  "audio/ogg",
	".opus": "audio/opus",
}

// SanitizeFilename makes name safe for a Content-Disposition header: diacritics are
// stripped, remaining non-ASCII runes and header metacharacters become "_".
func SanitizeFilename(name string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	stripped, _, err := transform.String(t, name)
	if err != nil {
		stripped = name
	}

	var b strings.Builder
	for _, r := range stripped {
		switch {
		case r > unicode.MaxASCII, r < 0x20, r == 0x7f:
			b.WriteByte('_')
		case r == '"', r == '\\', r == '/', r == ';':
			b.WriteByte('_')
		default:
			b.WriteRune(r)
		}
	}
	out := strings.TrimSpace(b.String())
	if out == "" || out == "." || out == ".." {
		return "download"
	}
	return out
}

// ContentDisposition builds an attachment header with an ASCII filename and the
// original name in RFC 5987 form.
func ContentDisposition(name string) string {
	safe := SanitizeFilename(name)
	if safe == name {
		return fmt.Sprintf(`attachment; filename="%s"`, safe)
	}
	return fmt.Sprintf(`attachment; filename="%s"; filename*=UTF-8''%s`, safe, url.PathEscape(name))
}

// DetectMIME picks the Content-Type for a file: audio extensions win, then a specific
// provider type, then the extension, then the sniffed leading bytes.
func DetectMIME(name, reported string, head []byte) string {
	if t, ok := audioTypes[adapter.Ext(name)]; ok {
		return t
	}
	t := adapter.GuessMIME(name, reported)
	if t != "application/octet-stream" || len(head) == 0 {
		return t
	}
	if m := mimetype.Detect(head); m != nil {
		return m.String()
	}
	return t
}

// archiveName returns the zip file name for a batch download.
func archiveName(name string) string {
	name = strings.TrimSuffix(SanitizeFilename(name), path.Ext(name))
	if name == "" || name == "download" {
		name = "gallery"
	}
	return name + ".zip"
}
