package services

import (
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"tracebrief/internal/config"
	"tracebrief/internal/logger"
	"tracebrief/utils"
)

// FileStorageManager handles secure file storage operations
type FileStorageManager struct {
	config    *config.Config
	uploadDir string
	tempDir   string
}

// NewFileStorageManager creates a new file storage manager
func NewFileStorageManager(cfg *config.Config) *FileStorageManager {
	baseDir := cfg.FileStorageDir
	if baseDir == "" {
		baseDir = "./storage"
	}

	uploadDir := filepath.Join(baseDir, "documents")
	tempDir := filepath.Join(baseDir, "temp")

	os.MkdirAll(uploadDir, 0755)
	os.MkdirAll(tempDir, 0755)

	return &FileStorageManager{
		config:    cfg,
		uploadDir: uploadDir,
		tempDir:   tempDir,
	}
}

// SecureFileInfo contains information about a securely stored file
type SecureFileInfo struct {
	Path       string
	SecureName string
	Hash       string
	Size       int64
}

// ValidateUpload performs cheap header-level checks before any bytes land
// on disk.
func (sm *FileStorageManager) ValidateUpload(header *multipart.FileHeader) error {
	if header.Size > sm.config.MaxFileSize {
		return fmt.Errorf("file size %d exceeds maximum allowed size %d", header.Size, sm.config.MaxFileSize)
	}
	if header.Size == 0 {
		return fmt.Errorf("file is empty")
	}

	filename := header.Filename
	if filename == "" {
		return fmt.Errorf("filename is required")
	}
	if len(filename) > 255 {
		return fmt.Errorf("filename too long (max 255 characters)")
	}

	dangerous := []string{"../", "..\\", "<", ">", ":", "\"", "|", "?", "*", "\x00"}
	for _, char := range dangerous {
		if strings.Contains(filename, char) {
			return fmt.Errorf("filename contains invalid or dangerous characters")
		}
	}

	if !strings.HasSuffix(strings.ToLower(filename), ".pdf") {
		return fmt.Errorf("only PDF files (.pdf extension) are allowed")
	}

	return nil
}

// SecureStore streams an upload to disk with hash calculation, validating
// PDF structure before the file reaches its final location.
func (sm *FileStorageManager) SecureStore(file multipart.File, header *multipart.FileHeader, sessionID string) (*SecureFileInfo, error) {
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("failed to reset file position: %w", err)
	}

	secureName := sm.generateSecureFilename(header.Filename)

	sessionDir := filepath.Join(sm.uploadDir, sessionID)
	if err := os.MkdirAll(sessionDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create session directory: %w", err)
	}

	filePath := filepath.Join(sessionDir, secureName)

	// Atomic write: temp file first, rename after validation
	tempPath := filepath.Join(sm.tempDir, uuid.NewString()+".tmp")
	tempFile, err := os.Create(tempPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create temp file: %w", err)
	}

	// Hash while writing: the tee feeds the temp file as the hasher reads
	hash, err := utils.HashReader(io.TeeReader(file, tempFile))
	if err != nil {
		tempFile.Close()
		os.Remove(tempPath)
		return nil, fmt.Errorf("failed to write file: %w", err)
	}

	if err := tempFile.Close(); err != nil {
		os.Remove(tempPath)
		return nil, fmt.Errorf("failed to close temp file: %w", err)
	}

	info, err := os.Stat(tempPath)
	if err != nil {
		os.Remove(tempPath)
		return nil, fmt.Errorf("failed to stat temp file: %w", err)
	}
	bytesWritten := info.Size()
	if bytesWritten == 0 {
		os.Remove(tempPath)
		return nil, fmt.Errorf("file is empty")
	}

	if err := sm.validateFileContent(tempPath, bytesWritten); err != nil {
		os.Remove(tempPath)
		return nil, err
	}

	if err := os.Rename(tempPath, filePath); err != nil {
		os.Remove(tempPath)
		return nil, fmt.Errorf("failed to move file to final location: %w", err)
	}

	return &SecureFileInfo{
		Path:       filePath,
		SecureName: secureName,
		Hash:       hash,
		Size:       bytesWritten,
	}, nil
}

// validateFileContent checks PDF magic bytes, basic object structure and
// the EOF trailer before the upload is accepted.
func (sm *FileStorageManager) validateFileContent(filePath string, size int64) error {
	file, err := os.Open(filePath)
	if err != nil {
		return fmt.Errorf("failed to open file for validation: %w", err)
	}
	defer file.Close()

	header := make([]byte, 1024)
	n, err := file.Read(header)
	if err != nil && err != io.EOF {
		return fmt.Errorf("failed to read file header: %w", err)
	}
	if n < 4 {
		return fmt.Errorf("file is too small or empty")
	}

	if string(header[:4]) != "%PDF" {
		return fmt.Errorf("invalid PDF file: missing PDF magic bytes")
	}

	headerStr := string(header[:n])
	if !strings.Contains(headerStr, "obj") && !strings.Contains(headerStr, "xref") && !strings.Contains(headerStr, "trailer") {
		return fmt.Errorf("invalid PDF structure: file may be corrupted or not a valid PDF")
	}

	// Check for PDF EOF markers at the end (read last 2KB)
	if size > 2048 {
		trailer := make([]byte, 2048)
		if _, err := file.ReadAt(trailer, size-2048); err != nil && err != io.EOF {
			return fmt.Errorf("failed to read PDF trailer: %w", err)
		}

		trailerStr := string(trailer)
		if !strings.Contains(trailerStr, "%%EOF") && !strings.Contains(trailerStr, "startxref") {
			return fmt.Errorf("invalid or corrupted PDF: missing EOF markers")
		}
	}

	return nil
}

// generateSecureFilename builds a collision-free name that keeps a hint of
// the original for operators browsing the storage directory.
func (sm *FileStorageManager) generateSecureFilename(original string) string {
	base := strings.TrimSuffix(filepath.Base(original), filepath.Ext(original))

	var cleaned strings.Builder
	for _, r := range base {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '-' || r == '_' {
			cleaned.WriteRune(r)
		}
	}
	name := cleaned.String()
	if len(name) > 40 {
		name = name[:40]
	}
	if name == "" {
		name = "document"
	}

	return fmt.Sprintf("%s_%d_%s.pdf", name, time.Now().Unix(), uuid.NewString()[:8])
}

// Cleanup removes a stored file, tolerating files already gone
func (sm *FileStorageManager) Cleanup(path string) {
	if path == "" {
		return
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		logger.Warn("Failed to clean up file", "path", path, "error", err)
	}
}

// CleanupSession removes the whole per-session directory
func (sm *FileStorageManager) CleanupSession(sessionID string) {
	if sessionID == "" {
		return
	}
	os.RemoveAll(filepath.Join(sm.uploadDir, sessionID))
}
