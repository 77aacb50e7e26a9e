package services

import (
	"archive/tar"
	"archive/zip"
	"bytes"
	"compress/bzip2"
	"compress/gzip"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
)

// archiveSuffixes are matched against the full trailing pattern of the
// filename so compound extensions like .tar.gz are recognized even though
// the last extension alone is just .gz.
var archiveSuffixes = []string{".tar.gz", ".tgz", ".tar.bz2", ".tbz2", ".tar", ".zip"}

// ExtractedFile is one regular file pulled out of an archive.
type ExtractedFile struct {
	Name string
	Data []byte
}

// ArchiveService expands uploaded zip/tar archives into in-memory file lists.
type ArchiveService struct{}

func NewArchiveService() *ArchiveService {
	return &ArchiveService{}
}

// IsArchive reports whether the filename carries a supported archive suffix.
func (s *ArchiveService) IsArchive(filename string) bool {
	lower := strings.ToLower(filename)
	for _, suffix := range archiveSuffixes {
		if strings.HasSuffix(lower, suffix) {
			return true
		}
	}
	return false
}

// Expand extracts all regular files from the archive, then filters them by a
// case-insensitive extension allow-list. A malformed archive is logged and
// yields an empty result instead of an error; the temp directory used for
// extraction is removed on every exit path.
func (s *ArchiveService) Expand(archiveName string, data []byte, allowedExtensions []string) []ExtractedFile {
	tempDir, err := os.MkdirTemp("", "veritext-archive-")
	if err != nil {
		log.Printf("ERROR creating temp dir for archive %s: %v", archiveName, err)
		return nil
	}
	defer os.RemoveAll(tempDir)

	paths, err := s.extract(archiveName, data, tempDir)
	if err != nil {
		log.Printf("ERROR extracting archive %s: %v", archiveName, err)
		return nil
	}

	allowed := make(map[string]bool, len(allowedExtensions))
	for _, ext := range allowedExtensions {
		allowed[strings.ToLower(ext)] = true
	}

	var files []ExtractedFile
	for _, p := range paths {
		if len(allowed) > 0 && !allowed[strings.ToLower(filepath.Ext(p))] {
			continue
		}
		content, err := os.ReadFile(p)
		if err != nil {
			log.Printf("ERROR reading extracted file %s: %v", p, err)
			continue
		}
		files = append(files, ExtractedFile{Name: filepath.Base(p), Data: content})
	}

	log.Printf("Archive %s expanded: %d files extracted, %d kept after filtering", archiveName, len(paths), len(files))
	return files
}

// extract writes every regular archive member into destDir and returns the
// written paths. Directory entries are skipped.
func (s *ArchiveService) extract(archiveName string, data []byte, destDir string) ([]string, error) {
	lower := strings.ToLower(archiveName)
	if strings.HasSuffix(lower, ".zip") {
		return s.extractZip(data, destDir)
	}

	var reader io.Reader = bytes.NewReader(data)
	switch {
	case strings.HasSuffix(lower, ".tar.gz") || strings.HasSuffix(lower, ".tgz"):
		gz, err := gzip.NewReader(reader)
		if err != nil {
			return nil, fmt.Errorf("failed to open gzip stream: %w", err)
		}
		defer gz.Close()
		reader = gz
	case strings.HasSuffix(lower, ".tar.bz2") || strings.HasSuffix(lower, ".tbz2"):
		reader = bzip2.NewReader(reader)
	case strings.HasSuffix(lower, ".tar"):
		// plain tar, no compression
	default:
		return nil, fmt.Errorf("unsupported archive format: %s", archiveName)
	}

	return s.extractTar(reader, destDir)
}

func (s *ArchiveService) extractZip(data []byte, destDir string) ([]string, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("failed to open zip archive: %w", err)
	}

	var paths []string
	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("failed to open zip entry %s: %w", f.Name, err)
		}
		path, err := writeExtracted(destDir, f.Name, rc)
		rc.Close()
		if err != nil {
			return nil, err
		}
		paths = append(paths, path)
	}
	return paths, nil
}

func (s *ArchiveService) extractTar(r io.Reader, destDir string) ([]string, error) {
	tr := tar.NewReader(r)
	var paths []string
	for {
		header, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read tar entry: %w", err)
		}
		if header.Typeflag != tar.TypeReg {
			continue
		}
		path, err := writeExtracted(destDir, header.Name, tr)
		if err != nil {
			return nil, err
		}
		paths = append(paths, path)
	}
	return paths, nil
}

// writeExtracted flattens the member path to its base name so archive entries
// cannot escape the temp directory. Members from different directories can
// share a base name, so collisions get a numeric suffix instead of
// overwriting an earlier member.
func writeExtracted(destDir, memberName string, r io.Reader) (string, error) {
	base := filepath.Base(memberName)
	path := filepath.Join(destDir, base)
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	for n := 1; ; n++ {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			break
		}
		path = filepath.Join(destDir, fmt.Sprintf("%s_%d%s", stem, n, ext))
	}
	out, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create extracted file %s: %w", path, err)
	}
	defer out.Close()
	if _, err := io.Copy(out, r); err != nil {
		return "", fmt.Errorf("failed to write extracted file %s: %w", path, err)
	}
	return path, nil
}
