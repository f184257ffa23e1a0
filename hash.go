package groupby

import (
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"sync"

	"github.com/spf13/afero"
)

// Default size for the buffer used when hashing files
const defaultBufferSize = 32 * 1024 // 32KB

// missingFingerprint is recorded for a dependency file that cannot be
// read. A file that appears later then fingerprints differently, which
// counts as a change.
const missingFingerprint = "absent"

// bufferPool is a pool of byte slices used for file I/O during hashing
var bufferPool = sync.Pool{
	New: func() interface{} {
		buffer := make([]byte, defaultBufferSize)
		return &buffer
	},
}

// hashFile hashes the content from a reader using the provided hash function.
func hashFile(content io.Reader, h hash.Hash) error {
	bufPtr := bufferPool.Get().(*[]byte)
	buffer := *bufPtr
	defer bufferPool.Put(bufPtr)

	// Hash the file content
	_, err := io.CopyBuffer(h, content, buffer)
	if err != nil {
		return fmt.Errorf("failed to copy content: %w", err)
	}
	return nil
}

// fileFingerprint returns a stable fingerprint of the file's current
// content, or missingFingerprint when the file cannot be read.
func fileFingerprint(fsys afero.Fs, newHash HashFunc, path string) string {
	f, err := fsys.Open(path)
	if err != nil {
		return missingFingerprint
	}
	defer f.Close()

	h := newHash()
	if err := hashFile(f, h); err != nil {
		return missingFingerprint
	}
	return hex.EncodeToString(h.Sum(nil))
}
