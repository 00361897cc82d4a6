package adapter

import (
	"mime"
	"path"
	"strings"
)

// extraTypes covers camera and video formats that mime.TypeByExtension often lacks.
var extraTypes = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".heic": "image/heic",
	".webp": "image/webp",
	".cr2":  "image/x-canon-cr2",
	".cr3":  "image/x-canon-cr3",
	".nef":  "image/x-nikon-nef",
	".arw":  "image/x-sony-arw",
	".dng":  "image/x-adobe-dng",
	".raw":  "image/x-raw",
	".mp4":  "video/mp4",
	".mov":  "video/quicktime",
	".m4v":  "video/x-m4v",
	".mp3":  "audio/mpeg",
	".m4a":  "audio/mp4",
	".wav":  "audio/wav",
	".aac":  "audio/aac",
	".ogg":  "audio/ogg",
	".flac": "audio/flac",
}

// Ext returns the lower-cased final extension of name, including the dot.
func Ext(name string) string {
	return strings.ToLower(path.Ext(name))
}

// GuessMIME returns reported unless it is empty or generic, in which case the type is
// inferred from the file extension.
func GuessMIME(name, reported string) string {
	if reported != "" && reported != "application/octet-stream" {
		return reported
	}
	ext := Ext(name)
	if t, ok := extraTypes[ext]; ok {
		return t
	}
	if t := mime.TypeByExtension(ext); t != "" {
		if i := strings.IndexByte(t, ';'); i >= 0 {
			t = t[:i]
		}
		return t
	}
	if reported != "" {
		return reported
	}
	return "application/octet-stream"
}
