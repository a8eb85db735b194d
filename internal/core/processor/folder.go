package processor

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"

	"github.com/markdave123-py/contexta-ingest/internal/models"
)

// NoSupportedFilesMessage fails a folder import that would create no children.
const NoSupportedFilesMessage = "No supported files found in ZIP archive"

// FileSizeLimiter reports the largest single file a tenant may ingest.
type FileSizeLimiter interface {
	MaxFileSize(ctx context.Context, organizationID string) (int64, error)
}

// FolderProcessor unpacks a ZIP archive into one FILE_UPLOAD child per supported file.
// The parent stays PROCESSING until its children are aggregated.
type FolderProcessor struct {
	Deps
	supported map[string]bool
	category  string
	limits    FileSizeLimiter
}

// NewFolderProcessor stores extracted files under uploadsPrefix/<parent job id>.
// Entries larger than the tenant's file size limit are skipped; a nil limiter
// reads entries uncapped.
func NewFolderProcessor(deps Deps, supportedMimeTypes []string, uploadsPrefix string, limits FileSizeLimiter) *FolderProcessor {
	set := make(map[string]bool, len(supportedMimeTypes))
	for _, m := range supportedMimeTypes {
		set[strings.ToLower(m)] = true
	}
	return &FolderProcessor{Deps: deps, supported: set, category: uploadsPrefix, limits: limits}
}

func (p *FolderProcessor) Supports(jobType models.JobType) bool {
	return jobType == models.JobTypeFolderImport
}

type archiveEntry struct {
	path     string
	name     string
	mimeType string
	data     []byte
}

func (p *FolderProcessor) Process(ctx context.Context, job *models.IngestionJob) error {
	if job.SourceReference == "" {
		return fmt.Errorf("no archive for folder import %s", job.ID)
	}
	decoded, err := models.DecodeMetadata(job)
	if err != nil {
		return err
	}
	meta := decoded.(models.FolderImportMetadata)
	lease := job.Lease()
	if err := p.progress(ctx, job, 10); err != nil {
		return err
	}

	body, err := p.Objects.GetFileStream(ctx, job.SourceReference)
	if err != nil {
		return fmt.Errorf("fetch archive %s: %w", job.FileName, err)
	}
	raw, err := io.ReadAll(body)
	body.Close()
	if err != nil {
		return fmt.Errorf("read archive %s: %w", job.FileName, err)
	}
	if err := p.progress(ctx, job, 30); err != nil {
		return err
	}

	maxEntry := int64(models.Unlimited)
	if p.limits != nil {
		if maxEntry, err = p.limits.MaxFileSize(ctx, job.OrganizationID); err != nil {
			return fmt.Errorf("file size limit for %s: %w", job.OrganizationID, err)
		}
	}
	entries, skipped, err := p.extract(job, raw, maxEntry)
	if err != nil {
		return err
	}
	if err := p.progress(ctx, job, 50); err != nil {
		return err
	}
	p.logger().Info("archive extracted",
		"job_id", job.ID,
		"supported", len(entries),
		"skipped", skipped,
	)

	if len(entries) == 0 {
		if err := job.MarkFailed(NoSupportedFilesMessage); err != nil {
			return err
		}
		return p.save(ctx, job, lease)
	}
	if err := p.progress(ctx, job, 60); err != nil {
		return err
	}

	category := path.Join(p.category, job.ID)
	children := make([]*models.IngestionJob, 0, len(entries))
	var total int64
	for _, e := range entries {
		key, err := p.Objects.UploadFile(ctx, bytes.NewReader(e.data), e.name, e.mimeType, int64(len(e.data)), category, job.OrganizationID)
		if err != nil {
			return fmt.Errorf("upload %s: %w", e.path, err)
		}
		child := models.NewChildJob(uuid.NewString(), job, models.JobTypeFileUpload)
		child.SourceType = models.SourceTypeS3Key
		child.SourceReference = key
		child.FileName = e.name
		child.FileSize = int64(len(e.data))
		child.MimeType = e.mimeType
		if meta.PreserveStructure {
			if dir := path.Dir(e.path); dir != "." {
				child.Metadata, err = models.EncodeMetadata(models.FolderChildMetadata{FolderPath: dir})
				if err != nil {
					return err
				}
			}
		}
		children = append(children, child)
		total += child.FileSize
	}

	if err := p.progress(ctx, job, 90); err != nil {
		return err
	}
	job.ChunksCreated = len(children)
	job.BytesProcessed = total
	job.ReleaseLease()

	err = p.withTx(ctx, func(ctx context.Context) error {
		if err := p.save(ctx, job, lease); err != nil {
			return err
		}
		for _, child := range children {
			if err := p.Queue.Enqueue(ctx, child); err != nil {
				return fmt.Errorf("enqueue %s: %w", child.FileName, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	p.logger().Info("folder import fanned out", "job_id", job.ID, "children", len(children), "bytes", total)
	return nil
}

// extract returns the supported entries of the archive and how many were
// skipped. No entry is read past maxEntry bytes.
func (p *FolderProcessor) extract(job *models.IngestionJob, raw []byte, maxEntry int64) ([]archiveEntry, int, error) {
	zr, err := zip.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if errors.Is(err, zip.ErrInsecurePath) {
		err = nil
	}
	if err != nil {
		return nil, 0, fmt.Errorf("open zip: %w", err)
	}

	var (
		entries []archiveEntry
		skipped int
	)
	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		clean, ok := SanitizeEntryPath(f.Name)
		if !ok || isHiddenEntry(clean) {
			skipped++
			continue
		}

		if f.UncompressedSize64 > uint64(maxEntry) {
			p.skipOversized(job, clean, maxEntry)
			skipped++
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, skipped, fmt.Errorf("open %s: %w", clean, err)
		}
		r := io.Reader(rc)
		if maxEntry < models.Unlimited {
			r = io.LimitReader(rc, maxEntry+1)
		}
		data, err := io.ReadAll(r)
		rc.Close()
		if err != nil && !errors.Is(err, zip.ErrFormat) {
			return nil, skipped, fmt.Errorf("read %s: %w", clean, err)
		}
		if err != nil || int64(len(data)) > maxEntry {
			// A header that understates the size fails with ErrFormat once
			// the read passes it.
			p.skipOversized(job, clean, maxEntry)
			skipped++
			continue
		}

		mimeType := detectMime(clean, data)
		if !p.supported[mimeType] {
			skipped++
			continue
		}
		entries = append(entries, archiveEntry{
			path:     clean,
			name:     path.Base(clean),
			mimeType: mimeType,
			data:     data,
		})
	}
	return entries, skipped, nil
}

func (p *FolderProcessor) skipOversized(job *models.IngestionJob, entry string, limit int64) {
	p.logger().Warn("archive entry over file size limit",
		"job_id", job.ID,
		"entry", entry,
		"limit_bytes", limit,
	)
}

// SanitizeEntryPath drops "." and ".." segments. An entry that tried to
// climb out of the archive root is rejected.
func SanitizeEntryPath(name string) (string, bool) {
	name = strings.ReplaceAll(name, "\\", "/")
	var parts []string
	for _, seg := range strings.Split(name, "/") {
		switch seg {
		case "", ".":
			continue
		case "..":
			return "", false
		}
		parts = append(parts, seg)
	}
	if len(parts) == 0 {
		return "", false
	}
	return strings.Join(parts, "/"), true
}

func isHiddenEntry(p string) bool {
	for _, seg := range strings.Split(p, "/") {
		if strings.HasPrefix(seg, ".") || seg == "__MACOSX" {
			return true
		}
	}
	base := path.Base(p)
	return base == "Thumbs.db" || base == "desktop.ini"
}

// textByExt refines generic text detection for formats sniffing cannot tell apart.
var textByExt = map[string]string{
	".md":       "text/markdown",
	".markdown": "text/markdown",
	".csv":      "text/csv",
	".json":     "application/json",
	".html":     "text/html",
	".htm":      "text/html",
	".xml":      "application/xml",
}

func detectMime(name string, data []byte) string {
	base := mimetype.Detect(data).String()
	if i := strings.IndexByte(base, ';'); i >= 0 {
		base = base[:i]
	}
	base = strings.ToLower(strings.TrimSpace(base))

	if base == "text/plain" {
		if m, ok := textByExt[strings.ToLower(path.Ext(name))]; ok {
			return m
		}
	}
	return base
}
