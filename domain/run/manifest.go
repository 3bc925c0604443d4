package run

import (
	"encoding/binary"
	"fmt"
	"time"

	"gosurv/domain/core"
)

// Manifest is the determinism tuple of a run: replaying the same dataset
// with the same configuration and code version reproduces the fold
// assignment and every score
type Manifest struct {
	RunID       core.RunID `json:"run_id"`
	DatasetHash core.Hash  `json:"dataset_hash"`
	FoldHash    core.Hash  `json:"fold_hash"`
	ConfigHash  core.Hash  `json:"config_hash"`
	Seed        int64      `json:"seed"`
	CodeVersion string     `json:"code_version"`
	Fingerprint core.Hash  `json:"fingerprint"` // hash of all of the above except RunID
	CreatedAt   time.Time  `json:"created_at"`
}

// NewManifest creates a manifest and computes its fingerprint. config is
// the serialized pipeline configuration.
func NewManifest(runID core.RunID, datasetHash, foldHash core.Hash, config []byte, seed int64, codeVersion string, createdAt time.Time) *Manifest {
	m := &Manifest{
		RunID:       runID,
		DatasetHash: datasetHash,
		FoldHash:    foldHash,
		ConfigHash:  core.NewHash(config),
		Seed:        seed,
		CodeVersion: codeVersion,
		CreatedAt:   createdAt,
	}
	m.Fingerprint = computeFingerprint(m)
	return m
}

func computeFingerprint(m *Manifest) core.Hash {
	data := fmt.Sprintf("dataset:%s|folds:%s|config:%s|code:%s|seed:",
		m.DatasetHash, m.FoldHash, m.ConfigHash, m.CodeVersion)
	return core.NewHash(binary.BigEndian.AppendUint64([]byte(data), uint64(m.Seed)))
}

// Validate checks if the manifest is complete and its fingerprint matches
func (m *Manifest) Validate() error {
	if core.ID(m.RunID).IsEmpty() {
		return core.NewInputError("manifest: run_id cannot be empty")
	}
	if m.DatasetHash.IsEmpty() {
		return core.NewInputError("manifest: dataset_hash cannot be empty")
	}
	if m.FoldHash.IsEmpty() {
		return core.NewInputError("manifest: fold_hash cannot be empty")
	}
	if m.CodeVersion == "" {
		return core.NewInputError("manifest: code_version cannot be empty")
	}
	if m.Fingerprint != computeFingerprint(m) {
		return core.NewInputError("manifest: fingerprint does not match its inputs")
	}
	return nil
}
