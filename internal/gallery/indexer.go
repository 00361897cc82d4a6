// Package gallery turns a provider folder into a structured gallery: root media become
// highlights, content subfolders become moments, and reserved variant folders are folded
// into each item's formats.
package gallery

import (
	"context"
	"log"
	"strings"

	"github.com/jun/gophgallery/internal/adapter"
	"github.com/jun/gophgallery/internal/model"
	"github.com/jun/gophgallery/internal/storage"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultThumbnailSize  = 400
	DefaultMaxConcurrency = 8
)

// Indexer builds GalleryStructures from connected accounts.
type Indexer struct {
	provider adapter.StorageProvider
	links    LinkBuilder

	ThumbnailSize  int
	MaxConcurrency int
}

// NewIndexer creates an Indexer.
func NewIndexer(provider adapter.StorageProvider, links LinkBuilder) *Indexer {
	return &Indexer{
		provider:       provider,
		links:          links,
		ThumbnailSize:  DefaultThumbnailSize,
		MaxConcurrency: DefaultMaxConcurrency,
	}
}

// momentListing is what was read for one content folder.
type momentListing struct {
	folder   adapter.Folder
	files    []adapter.File
	variants variantIndex
}

// IndexGallery walks rootFolderID of accountID's storage. Only credential errors are
// returned: a folder that cannot be listed yields an empty moment.
func (ix *Indexer) IndexGallery(ctx context.Context, accountID, rootFolderID string, cfg model.GalleryConfig) (*model.GalleryStructure, error) {
	ad, err := ix.provider.GetAdapter(ctx, accountID)
	if err != nil {
		return nil, err
	}

	var (
		rootFiles   []adapter.File
		rootFolders []adapter.Folder
	)
	var g errgroup.Group
	g.Go(func() error {
		rootFiles = storage.ListFiles(ctx, ad, rootFolderID)
		return nil
	})
	g.Go(func() error {
		rootFolders = storage.ListFolders(ctx, ad, rootFolderID)
		return nil
	})
	g.Wait()

	var reserved, content []adapter.Folder
	for _, f := range rootFolders {
		if IsReserved(f.Name) {
			reserved = append(reserved, f)
		} else {
			content = append(content, f)
		}
	}

	listings := make([]momentListing, len(content))
	var rootVariants variantIndex

	g = errgroup.Group{}
	g.SetLimit(ix.concurrency())
	if !cfg.SkipFormats && len(reserved) > 0 {
		g.Go(func() error {
			rootVariants = ix.listVariants(ctx, ad, reserved)
			return nil
		})
	}
	for i, f := range content {
		g.Go(func() error {
			listings[i] = ix.listMoment(ctx, ad, f, cfg.SkipFormats)
			return nil
		})
	}
	g.Wait()

	p := ad.Provider()
	gs := &model.GalleryStructure{
		Highlights: []model.MediaItem{},
		Moments:    make([]model.Moment, 0, len(listings)),
	}
	for _, f := range rootFiles {
		if IsMedia(f) {
			gs.Highlights = append(gs.Highlights, ix.mediaItem(accountID, p, f, nil))
		}
	}
	for _, l := range listings {
		m := model.Moment{ID: l.folder.ID, Name: l.folder.Name, Items: []model.MediaItem{}}
		for _, f := range l.files {
			if !IsMedia(f) {
				continue
			}
			var formats *model.Formats
			if !cfg.SkipFormats {
				formats = resolveFormats(f, IsVideo(f), l.variants, rootVariants)
			}
			m.Items = append(m.Items, ix.mediaItem(accountID, p, f, formats))
		}
		gs.Moments = append(gs.Moments, m)
	}

	mergeExternal(gs, cfg.ExternalMedia)

	SortItems(gs.Highlights, cfg.FileOrder)
	for i := range gs.Moments {
		SortItems(gs.Moments[i].Items, cfg.FileOrder)
	}
	SortMoments(gs.Moments, cfg.MomentsOrder)

	gs.TotalItems = len(gs.Highlights)
	for _, m := range gs.Moments {
		gs.TotalItems += len(m.Items)
	}
	log.Printf("[Indexer] Indexed %s/%s: %d highlights, %d moments, %d items",
		accountID, rootFolderID, len(gs.Highlights), len(gs.Moments), gs.TotalItems)
	return gs, nil
}

// listMoment lists a content folder and, unless skipped, its reserved subfolders.
// Deeper nesting is not walked.
func (ix *Indexer) listMoment(ctx context.Context, ad adapter.StorageAdapter, folder adapter.Folder, skipFormats bool) momentListing {
	l := momentListing{folder: folder}
	var subs []adapter.Folder
	var g errgroup.Group
	g.Go(func() error {
		l.files = storage.ListFiles(ctx, ad, folder.ID)
		return nil
	})
	if !skipFormats {
		g.Go(func() error {
			subs = storage.ListFolders(ctx, ad, folder.ID)
			return nil
		})
	}
	g.Wait()

	var reserved []adapter.Folder
	for _, sub := range subs {
		if IsReserved(sub.Name) {
			reserved = append(reserved, sub)
		}
	}
	l.variants = ix.listVariants(ctx, ad, reserved)
	return l
}

// listVariants lists reserved folders concurrently. Results are indexed in folder
// order so the first folder still wins on a name clash.
func (ix *Indexer) listVariants(ctx context.Context, ad adapter.StorageAdapter, folders []adapter.Folder) variantIndex {
	files := make([][]adapter.File, len(folders))
	var g errgroup.Group
	g.SetLimit(ix.concurrency())
	for i, f := range folders {
		g.Go(func() error {
			files[i] = storage.ListFiles(ctx, ad, f.ID)
			return nil
		})
	}
	g.Wait()

	idx := make(variantIndex)
	for i, f := range folders {
		idx.add(f.Name, files[i])
	}
	return idx
}

func (ix *Indexer) concurrency() int {
	if ix.MaxConcurrency > 0 {
		return ix.MaxConcurrency
	}
	return DefaultMaxConcurrency
}

func (ix *Indexer) mediaItem(accountID string, p model.Provider, f adapter.File, formats *model.Formats) model.MediaItem {
	size := ix.ThumbnailSize
	if size <= 0 {
		size = DefaultThumbnailSize
	}
	return model.MediaItem{
		ID:        f.ID,
		URL:       ix.links.Stream(accountID, f.ID),
		Thumbnail: ix.links.Thumbnail(accountID, f.ID, size),
		Name:      f.Name,
		MIMEType:  f.MIMEType,
		Size:      f.Size,
		Width:     f.Width,
		Height:    f.Height,
		IsVideo:   IsVideo(f),
		Source:    string(p),
		Duration:  f.Duration,
		Formats:   formats,
	}
}

// mergeExternal adds YouTube/Vimeo items: no moment name joins the highlights,
// otherwise the moment with the same name (trimmed, case-insensitive).
func mergeExternal(gs *model.GalleryStructure, externals []model.ExternalMedia) {
	for _, e := range externals {
		id := e.ID
		if id == "" {
			id = e.Provider + ":" + e.ExternalID
		}
		item := model.MediaItem{
			ID:         id,
			URL:        e.URL,
			Thumbnail:  e.ThumbnailURL,
			Name:       e.Name,
			IsVideo:    true,
			Source:     e.Provider,
			ExternalID: e.ExternalID,
			Duration:   e.Duration,
		}

		target := strings.TrimSpace(e.MomentName)
		if target == "" {
			gs.Highlights = append(gs.Highlights, item)
			continue
		}
		placed := false
		for i := range gs.Moments {
			if strings.EqualFold(strings.TrimSpace(gs.Moments[i].Name), target) {
				gs.Moments[i].Items = append(gs.Moments[i].Items, item)
				placed = true
				break
			}
		}
		if !placed {
			log.Printf("[Indexer] Dropping external %s %s: no moment named %q", e.Provider, e.ExternalID, target)
		}
	}
}
