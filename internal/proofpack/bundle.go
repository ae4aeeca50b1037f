package proofpack

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"time"
)

// Manifest is written as manifest.json inside an exported bundle. It carries
// everything an offline verifier needs except the shared secret.
type Manifest struct {
	Version     string            `json:"version"`
	PackID      string            `json:"pack_id"`
	GeneratedAt time.Time         `json:"generated_at"`
	ContentHash string            `json:"content_hash"`
	AuthTag     string            `json:"auth_tag"`
	FileHashes  map[string]string `json:"file_hashes"`
}

const bundleVersion = "1.0"

const bundleReadme = `SENTINEL PROOF PACK
===================

This archive is a sealed snapshot of the sentinel system state and its audit
and governance ledgers, generated for external audit.

Contents:
  state.json       — system state at sealing time
  audit.json       — recent audit ledger entries (newest first)
  governance.json  — recent governance ledger entries (newest first)
  manifest.json    — pack id, content hash, authentication tag, file hashes

Verification:
  1. Recompute the SHA-256 of each snapshot file and compare against
     manifest.file_hashes.
  2. Recompute the content hash over the RFC 8785 canonical JSON of the
     snapshots and compare against manifest.content_hash.
  3. With the shared verification secret, recompute
     HMAC-SHA256(secret, content_hash) and compare against manifest.auth_tag.
     The secret is distributed out-of-band and is never part of this archive.

Or run: sentinel verify <this file>
`

// WriteBundle serialises a sealed pack into a deterministic tar.gz archive:
// sorted entry names, epoch mtimes, fixed uid/gid. The same pack always
// produces byte-identical snapshot entries.
func WriteBundle(pack *Pack) ([]byte, error) {
	files := map[string][]byte{}

	stateJSON, err := json.MarshalIndent(pack.State, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal state snapshot: %w", err)
	}
	auditJSON, err := json.MarshalIndent(pack.Audit, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal audit snapshot: %w", err)
	}
	govJSON, err := json.MarshalIndent(pack.Governance, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal governance snapshot: %w", err)
	}
	files["state.json"] = stateJSON
	files["audit.json"] = auditJSON
	files["governance.json"] = govJSON
	files["README.txt"] = []byte(bundleReadme)

	fileHashes := make(map[string]string, len(files))
	for name, data := range files {
		sum := sha256.Sum256(data)
		fileHashes[name] = hex.EncodeToString(sum[:])
	}

	manifest := Manifest{
		Version:     bundleVersion,
		PackID:      pack.ID,
		GeneratedAt: pack.GeneratedAt,
		ContentHash: pack.ContentHash,
		AuthTag:     pack.AuthTag,
		FileHashes:  fileHashes,
	}
	manifestJSON, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal manifest: %w", err)
	}
	files["manifest.json"] = manifestJSON

	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)

	var buf bytes.Buffer
	gw := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gw)
	for _, name := range names {
		hdr := &tar.Header{
			Name:    name,
			Size:    int64(len(files[name])),
			Mode:    0o644,
			ModTime: time.Unix(0, 0),
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return nil, fmt.Errorf("write bundle header %s: %w", name, err)
		}
		if _, err := tw.Write(files[name]); err != nil {
			return nil, fmt.Errorf("write bundle entry %s: %w", name, err)
		}
	}
	if err := tw.Close(); err != nil {
		return nil, fmt.Errorf("close bundle tar: %w", err)
	}
	if err := gw.Close(); err != nil {
		return nil, fmt.Errorf("close bundle gzip: %w", err)
	}
	return buf.Bytes(), nil
}

// ReadBundle reconstructs a Pack from an exported bundle so it can be
// verified offline. File hashes from the manifest are checked first; the
// caller then runs Sealer.Verify on the returned pack.
func ReadBundle(r io.Reader) (*Pack, error) {
	gr, err := gzip.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("open bundle gzip: %w", err)
	}
	defer gr.Close()

	tr := tar.NewReader(gr)
	files := map[string][]byte{}
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read bundle tar: %w", err)
		}
		data, err := io.ReadAll(tr)
		if err != nil {
			return nil, fmt.Errorf("read bundle entry %s: %w", hdr.Name, err)
		}
		files[hdr.Name] = data
	}

	manifestJSON, ok := files["manifest.json"]
	if !ok {
		return nil, fmt.Errorf("bundle has no manifest.json")
	}
	var manifest Manifest
	if err := json.Unmarshal(manifestJSON, &manifest); err != nil {
		return nil, fmt.Errorf("decode manifest: %w", err)
	}

	for name, want := range manifest.FileHashes {
		data, ok := files[name]
		if !ok {
			return nil, fmt.Errorf("bundle entry %s missing", name)
		}
		sum := sha256.Sum256(data)
		if hex.EncodeToString(sum[:]) != want {
			return nil, fmt.Errorf("bundle entry %s: %w", name, errFileHash)
		}
	}

	pack := &Pack{
		ID:          manifest.PackID,
		GeneratedAt: manifest.GeneratedAt,
		ContentHash: manifest.ContentHash,
		AuthTag:     manifest.AuthTag,
	}
	if err := json.Unmarshal(files["state.json"], &pack.State); err != nil {
		return nil, fmt.Errorf("decode state snapshot: %w", err)
	}
	if err := json.Unmarshal(files["audit.json"], &pack.Audit); err != nil {
		return nil, fmt.Errorf("decode audit snapshot: %w", err)
	}
	if err := json.Unmarshal(files["governance.json"], &pack.Governance); err != nil {
		return nil, fmt.Errorf("decode governance snapshot: %w", err)
	}
	return pack, nil
}

var errFileHash = fmt.Errorf("file hash mismatch")
