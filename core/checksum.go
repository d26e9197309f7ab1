package core

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"
)

// ComputeSHA256 computes the SHA256 hash of a file and returns it as a
// lowercase hexadecimal string. The file is streamed in chunks, so this is
// safe for multi-gigabyte weight files.
//
// Returns an error if the file cannot be opened or read.
func ComputeSHA256(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("path cannot be empty")
	}

	file, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open file %q: %w", path, err)
	}
	defer file.Close()

	hasher := sha256.New()
	if _, err := io.Copy(hasher, file); err != nil {
		return "", fmt.Errorf("failed to read file %q: %w", path, err)
	}

	return hex.EncodeToString(hasher.Sum(nil)), nil
}

// ComputeSHA256FromBytes computes the SHA256 hash of a byte slice.
func ComputeSHA256FromBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// VerifyChecksum compares a file's SHA256 hash against an expected value.
// The comparison is case-insensitive. An empty expected value skips
// verification and reports success.
func VerifyChecksum(path, expected string) (bool, error) {
	if expected == "" {
		return true, nil
	}

	actual, err := ComputeSHA256(path)
	if err != nil {
		return false, err
	}

	return strings.EqualFold(actual, expected), nil
}
