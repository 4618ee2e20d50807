package archive

import (
	"archive/zip"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/bridger-herman/zotero-gallery/pkg/config"
	"github.com/bridger-herman/zotero-gallery/pkg/errcodes"
	"github.com/bridger-herman/zotero-gallery/pkg/fileutils"
	"github.com/bridger-herman/zotero-gallery/pkg/gallery"
	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"
)

// Archiver collapses the image tree down to one chosen image per publication
// and serializes it into a single portable zip, one entry per publication
// under <citeKey>/<filename>. The inverse restores the archive over the
// tree.
type Archiver struct {
	cfg            *config.Config
	galleryService *gallery.Service
	log            logger.Logger
}

func NewArchiver(cfg *config.Config, galleryService *gallery.Service) *Archiver {
	return &Archiver{
		cfg:            cfg,
		galleryService: galleryService,
		log:            logger.New(),
	}
}

// PackResult summarizes one pack run.
type PackResult struct {
	Archived     int
	Collapsed    int
	Orphaned     []string
	SkippedEmpty []string
}

// Pack first collapses every unpacked publication directory to the image at
// its preview index, then writes the archive. Already-packed publications
// are untouched, so re-packing is a no-op. The second phase tolerates
// partially-packed state left behind by an interrupted earlier run.
func (a *Archiver) Pack(ctx context.Context) (*PackResult, error) {
	imagesDir := a.cfg.ImagesDir()
	result := &PackResult{}

	citeKeys, err := publicationDirs(imagesDir)
	if err != nil {
		return nil, err
	}

	for _, citeKey := range citeKeys {
		collapsed, err := a.collapse(ctx, citeKey, result)
		if err != nil {
			return nil, err
		}
		if collapsed {
			result.Collapsed++
		}
	}

	if err := a.writeArchive(citeKeys, result); err != nil {
		return nil, err
	}

	return result, nil
}

func (a *Archiver) collapse(ctx context.Context, citeKey string, result *PackResult) (bool, error) {
	imageDir := filepath.Join(a.cfg.ImagesDir(), citeKey)

	entry, err := a.galleryService.RetrieveEntry(ctx, citeKey)
	if err != nil {
		if errcodes.IsNotFound(err) {
			a.log.Warn("orphaned image directory, skipping", logger.Data{"cite_key": citeKey})
			result.Orphaned = append(result.Orphaned, citeKey)
			return false, nil
		}
		return false, err
	}

	if entry.Packed() {
		return false, nil
	}

	images, err := fileutils.ListFiles(imageDir)
	if err != nil {
		return false, err
	}
	if len(images) == 0 {
		a.log.Warn("publication has no images, skipping", logger.Data{"cite_key": citeKey})
		result.SkippedEmpty = append(result.SkippedEmpty, citeKey)
		return false, nil
	}

	// The preview clamp allows an index equal to the image count, so the
	// selection has to tolerate an out-of-range index.
	keep := entry.PreviewIndex
	if keep >= len(images) {
		keep = len(images) - 1
	}

	for i, name := range images {
		if i == keep {
			continue
		}
		if err := os.Remove(filepath.Join(imageDir, name)); err != nil {
			return false, errors.WithStack(err)
		}
	}

	if err := a.galleryService.MarkPacked(ctx, citeKey); err != nil {
		return false, err
	}

	return true, nil
}

func (a *Archiver) writeArchive(citeKeys []string, result *PackResult) error {
	f, err := os.Create(a.cfg.ArchivePath())
	if err != nil {
		return errors.WithStack(err)
	}
	defer f.Close()

	zw := zip.NewWriter(f)
	defer zw.Close()

	orphaned := make(map[string]bool, len(result.Orphaned))
	for _, citeKey := range result.Orphaned {
		orphaned[citeKey] = true
	}

	for _, citeKey := range citeKeys {
		// Orphans were already warned about during the collapse phase.
		if orphaned[citeKey] {
			continue
		}

		imageDir := filepath.Join(a.cfg.ImagesDir(), citeKey)

		images, err := fileutils.ListFiles(imageDir)
		if err != nil {
			return err
		}
		if len(images) == 0 {
			a.log.Warn("excluding empty publication from archive", logger.Data{"cite_key": citeKey})
			continue
		}
		if len(images) > 1 {
			// Interrupted earlier pack; archive the first image and move on.
			a.log.Warn("publication still has multiple images after packing", logger.Data{"cite_key": citeKey, "images": len(images)})
		}

		name := images[0]
		w, err := zw.Create(citeKey + "/" + name)
		if err != nil {
			return errors.WithStack(err)
		}

		src, err := os.Open(filepath.Join(imageDir, name))
		if err != nil {
			return errors.WithStack(err)
		}
		_, err = io.Copy(w, src)
		src.Close()
		if err != nil {
			return errors.WithStack(err)
		}

		result.Archived++
	}

	if err := zw.Close(); err != nil {
		return errors.WithStack(err)
	}
	return errors.WithStack(f.Close())
}

// UnpackResult reports how much of the archive was already present locally.
type UnpackResult struct {
	Total int
	New   int
}

// Unpack extracts the whole archive over the image tree. Existing files are
// overwritten (last unpack wins); files the tree doesn't have yet are
// counted as new.
func (a *Archiver) Unpack() (*UnpackResult, error) {
	zr, err := zip.OpenReader(a.cfg.ArchivePath())
	if err != nil {
		return nil, errors.WithStack(err)
	}
	defer zr.Close()

	imagesDir := a.cfg.ImagesDir()
	result := &UnpackResult{}

	for _, file := range zr.File {
		if file.FileInfo().IsDir() {
			continue
		}

		dest := filepath.Join(imagesDir, filepath.FromSlash(file.Name))
		if !strings.HasPrefix(dest, imagesDir+string(filepath.Separator)) {
			return nil, errors.Errorf("archive entry escapes image tree: %s", file.Name)
		}

		result.Total++
		if !fileutils.Exists(dest) {
			result.New++
		}

		if err := extractFile(file, dest); err != nil {
			return nil, err
		}
	}

	return result, nil
}

func extractFile(file *zip.File, dest string) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return errors.WithStack(err)
	}

	r, err := file.Open()
	if err != nil {
		return errors.WithStack(err)
	}
	defer r.Close()

	w, err := os.Create(dest)
	if err != nil {
		return errors.WithStack(err)
	}
	defer w.Close()

	if _, err := io.Copy(w, r); err != nil {
		return errors.WithStack(err)
	}

	return errors.WithStack(w.Close())
}

// publicationDirs lists the citation-keyed subdirectories of the image tree
// in sorted order. A missing tree means there is nothing to pack.
func publicationDirs(imagesDir string) ([]string, error) {
	entries, err := os.ReadDir(imagesDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.WithStack(err)
	}

	var citeKeys []string
	for _, entry := range entries {
		if entry.IsDir() {
			citeKeys = append(citeKeys, entry.Name())
		}
	}

	return citeKeys, nil
}
