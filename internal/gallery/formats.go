package gallery

import (
	"path"
	"strings"

	"github.com/jun/gophgallery/internal/adapter"
	"github.com/jun/gophgallery/internal/model"
)

// reservedNames are subfolder names that hold resolution or role variants of their
// siblings. They are never moments.
var reservedNames = map[string]bool{
	"web":     true,
	"webjpg":  true,
	"webmp4":  true,
	"jpg":     true,
	"high":    true,
	"alta":    true,
	"hd":      true,
	"baja":    true,
	"preview": true,
	"masters": true,
	"crudos":  true,
	"raw":     true,
	"selects": true,
}

// IsReserved reports whether a folder name is a reserved variant name.
func IsReserved(name string) bool {
	return reservedNames[strings.ToLower(strings.TrimSpace(name))]
}

// roles lists, per format slot, the reserved folders consulted in priority order.
type roles struct {
	web, jpg, hd, raw []string
}

var (
	photoRoles = roles{
		web: []string{"webjpg", "web"},
		jpg: []string{"jpg", "webjpg"},
		raw: []string{"raw", "crudos", "masters", "alta", "high"},
	}
	videoRoles = roles{
		web: []string{"webmp4", "preview", "web"},
		hd:  []string{"hd", "baja"},
		raw: []string{"alta", "raw", "high", "masters", "crudos"},
	}
)

var mediaExtensions = map[string]bool{
	"jpg":  true,
	"jpeg": true,
	"png":  true,
	"mp4":  true,
	"mov":  true,
}

var videoExtensions = map[string]bool{
	"mp4": true,
	"mov": true,
}

func extension(name string) string {
	return strings.TrimPrefix(adapter.Ext(name), ".")
}

// IsMedia reports whether f belongs in a gallery. Files with an extension must be
// on the whitelist; files without one are accepted by image/ or video/ MIME type.
func IsMedia(f adapter.File) bool {
	if ext := extension(f.Name); ext != "" {
		return mediaExtensions[ext]
	}
	return strings.HasPrefix(f.MIMEType, "image/") || strings.HasPrefix(f.MIMEType, "video/")
}

// IsVideo reports whether a media file is a video.
func IsVideo(f adapter.File) bool {
	if ext := extension(f.Name); ext != "" {
		return videoExtensions[ext]
	}
	return strings.HasPrefix(f.MIMEType, "video/")
}

// BaseName is the filename without its final extension, lower-cased.
func BaseName(name string) string {
	return strings.ToLower(strings.TrimSuffix(name, path.Ext(name)))
}

// variantIndex maps reserved folder name -> base filename -> file id.
type variantIndex map[string]map[string]string

func (v variantIndex) add(folder string, files []adapter.File) {
	key := strings.ToLower(strings.TrimSpace(folder))
	m, ok := v[key]
	if !ok {
		m = make(map[string]string)
		v[key] = m
	}
	for _, f := range files {
		base := BaseName(f.Name)
		if _, dup := m[base]; !dup {
			m[base] = f.ID
		}
	}
}

// lookup returns the first match for base across folders. Any local match wins over
// the fallback pool.
func lookup(base string, folders []string, local, fallback variantIndex) string {
	for _, idx := range []variantIndex{local, fallback} {
		for _, folder := range folders {
			if id := idx[folder][base]; id != "" {
				return id
			}
		}
	}
	return ""
}

// resolveFormats cross-references a file against variant folders by base filename.
// It returns nil when no alternate exists.
func resolveFormats(f adapter.File, video bool, local, fallback variantIndex) *model.Formats {
	r := photoRoles
	if video {
		r = videoRoles
	}
	base := BaseName(f.Name)
	formats := model.Formats{
		Web: lookup(base, r.web, local, fallback),
		JPG: lookup(base, r.jpg, local, fallback),
		HD:  lookup(base, r.hd, local, fallback),
		Raw: lookup(base, r.raw, local, fallback),
	}
	if formats.Empty() {
		return nil
	}
	return &formats
}
