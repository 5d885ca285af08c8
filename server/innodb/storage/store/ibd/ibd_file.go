/*
IBD_File is the lowest layer of the storage system:
1. Direct file I/O
2. Page reading and writing, with checksum stamping and verification
3. Does not care about page allocation state

Physical structure: .ibd file -> pages of PageSize bytes, page n at n*PageSize.
*/

package ibd

import (
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/pkg/errors"

	"github.com/zhukovaskychina/xmysql-flst/logger"
)

// IBD_File represents a physical tablespace file
type IBD_File struct {
	sync.RWMutex
	filePath string
	file     *os.File
	spaceID  uint32
	name     string
	pageSize int
}

var _ PageStore = (*IBD_File)(nil)

// NewIBDFile creates a new IBD file instance
func NewIBDFile(dataDir string, name string, spaceID uint32, pageSize int) *IBD_File {
	return &IBD_File{
		filePath: filepath.Join(dataDir, name+".ibd"),
		spaceID:  spaceID,
		name:     name,
		pageSize: pageSize,
	}
}

// Open opens the file, creating it (and the data directory) when missing.
func (f *IBD_File) Open() error {
	f.Lock()
	defer f.Unlock()

	if f.file != nil {
		return errors.Wrap(ErrFileAlreadyExist, f.filePath)
	}
	if !ValidPageSize(f.pageSize) {
		return errors.Wrapf(ErrInvalidPageSize, "%d", f.pageSize)
	}
	if err := os.MkdirAll(filepath.Dir(f.filePath), 0755); err != nil {
		return errors.Wrap(err, "failed to create directory")
	}

	file, err := os.OpenFile(f.filePath, os.O_RDWR|os.O_CREATE, 0666)
	if err != nil {
		return errors.Wrap(err, "failed to open file")
	}
	f.file = file
	logger.Debugf("opened tablespace %s (space %d, page size %d)", f.filePath, f.spaceID, f.pageSize)
	return nil
}

// ReadPage reads a page from disk
func (f *IBD_File) ReadPage(pageNo uint32) ([]byte, error) {
	f.RLock()
	defer f.RUnlock()

	if f.file == nil {
		return nil, ErrFileNotOpen
	}

	page := make([]byte, f.pageSize)
	n, err := f.file.ReadAt(page, int64(pageNo)*int64(f.pageSize))
	if err == io.EOF && n == 0 {
		return nil, errors.Wrapf(ErrPageNotFound, "space %d page %d", f.spaceID, pageNo)
	}
	if err != nil && err != io.EOF {
		return nil, errors.Wrapf(err, "failed to read page %d", pageNo)
	}
	if n != f.pageSize {
		return nil, errors.Errorf("incomplete page read: %d bytes", n)
	}
	if err := VerifyPage(pageNo, page); err != nil {
		return nil, err
	}
	return page, nil
}

// WritePage writes a page to disk
func (f *IBD_File) WritePage(pageNo uint32, page []byte) error {
	f.Lock()
	defer f.Unlock()

	if f.file == nil {
		return ErrFileNotOpen
	}
	if len(page) != f.pageSize {
		return errors.Wrapf(ErrInvalidPageSize, "%d", len(page))
	}

	out := StampPage(f.spaceID, pageNo, page)
	n, err := f.file.WriteAt(out, int64(pageNo)*int64(f.pageSize))
	if err != nil {
		return errors.Wrapf(err, "failed to write page %d", pageNo)
	}
	if n != f.pageSize {
		return errors.Errorf("incomplete page write: %d bytes", n)
	}
	return nil
}

// Sync flushes file buffers to disk
func (f *IBD_File) Sync() error {
	f.RLock()
	defer f.RUnlock()

	if f.file == nil {
		return ErrFileNotOpen
	}
	return f.file.Sync()
}

// SpaceID returns the tablespace ID
func (f *IBD_File) SpaceID() uint32 {
	return f.spaceID
}

func (f *IBD_File) PageSize() int {
	return f.pageSize
}

// GetFilePath returns the file path
func (f *IBD_File) GetFilePath() string {
	return f.filePath
}

// Close closes the IBD file
func (f *IBD_File) Close() error {
	f.Lock()
	defer f.Unlock()

	if f.file == nil {
		return nil
	}
	if err := f.file.Sync(); err != nil {
		return errors.Wrap(err, "failed to sync file")
	}
	if err := f.file.Close(); err != nil {
		return errors.Wrap(err, "failed to close file")
	}
	f.file = nil
	return nil
}

// Size returns the current size of the IBD file in bytes
func (f *IBD_File) Size() (int64, error) {
	f.RLock()
	defer f.RUnlock()

	if f.file == nil {
		return 0, ErrFileNotOpen
	}
	info, err := f.file.Stat()
	if err != nil {
		return 0, errors.Wrap(err, "failed to get file info")
	}
	return info.Size(), nil
}

// Extend grows the file to at least nPages pages. The new pages read back as
// zero pages.
func (f *IBD_File) Extend(nPages uint32) error {
	f.Lock()
	defer f.Unlock()

	if f.file == nil {
		return ErrFileNotOpen
	}
	info, err := f.file.Stat()
	if err != nil {
		return errors.Wrap(err, "failed to get file info")
	}
	want := int64(nPages) * int64(f.pageSize)
	if info.Size() >= want {
		return nil
	}
	if err := f.file.Truncate(want); err != nil {
		return errors.Wrapf(err, "failed to extend %s to %d pages", f.filePath, nPages)
	}
	logger.Debugf("extended tablespace %s to %d pages", f.filePath, nPages)
	return nil
}
