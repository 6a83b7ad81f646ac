// Package fingerprint computes content hashes used as the primary dedup key
// during library scans.
package fingerprint

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"

	"github.com/pkg/errors"
	"github.com/shelfmark/shelfmark/pkg/models"
)

// chunkSize bounds how much of a file is held in memory while hashing.
const chunkSize = 256 * 1024

// Fingerprint identifies file content independently of its path or name.
type Fingerprint struct {
	Algorithm string
	Hex       string
}

func (fp *Fingerprint) String() string {
	return fp.Algorithm + ":" + fp.Hex
}

// Compute streams the file through sha256 in fixed-size chunks. The context
// is checked between chunks so a per-file budget can interrupt hashing of a
// large or slow file.
func Compute(ctx context.Context, path string) (*Fingerprint, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	defer f.Close()

	h := sha256.New()
	buf := make([]byte, chunkSize)
	for {
		if err := ctx.Err(); err != nil {
			return nil, errors.WithStack(err)
		}
		n, err := f.Read(buf)
		if n > 0 {
			// sha256.Write never returns an error.
			h.Write(buf[:n])
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.WithStack(err)
		}
	}

	return &Fingerprint{
		Algorithm: models.FingerprintAlgorithmSHA256,
		Hex:       hex.EncodeToString(h.Sum(nil)),
	}, nil
}
