package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// ComputeRegimeRunID computes a deterministic regime_run_id using SHA256.
// Formula: SHA256(dataset_id|freq|model|canonical_params)
// Returns hex-encoded hash (64 characters).
//
// Params are canonicalized before hashing (decoded and re-encoded with
// sorted object keys), so two requests with equivalent but
// differently-ordered parameter encodings map to the same run id.
func ComputeRegimeRunID(datasetID, freq, model, paramsJSON string) (string, error) {
	canonical, err := CanonicalParams(paramsJSON)
	if err != nil {
		return "", fmt.Errorf("canonicalize params: %w", err)
	}

	data := fmt.Sprintf("%s|%s|%s|%s", datasetID, freq, model, canonical)
	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:]), nil
}

// CanonicalParams re-encodes a JSON parameter document with sorted
// object keys. encoding/json marshals map keys in sorted order, so a
// decode/encode round trip yields a canonical form. Empty input
// canonicalizes to "null".
func CanonicalParams(paramsJSON string) (string, error) {
	if paramsJSON == "" {
		return "null", nil
	}

	var decoded any
	if err := json.Unmarshal([]byte(paramsJSON), &decoded); err != nil {
		return "", fmt.Errorf("decode params: %w", err)
	}

	out, err := json.Marshal(decoded)
	if err != nil {
		return "", fmt.Errorf("encode params: %w", err)
	}
	return string(out), nil
}
