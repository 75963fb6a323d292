package main

import (
	"bufio"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
)

// checksums maps release asset names to SHA-256 hex digests.
type checksums map[string]string

// readChecksums reads `shasum -a 256` output: one "<hex> <name>" pair per
// line, separated by any whitespace. Lines that do not carry a 64-char
// digest and a name are ignored.
func readChecksums(r io.Reader) (checksums, error) {
	sums := checksums{}
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 2 || len(fields[0]) != sha256.Size*2 {
			continue
		}
		sums[fields[len(fields)-1]] = fields[0]
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading checksums: %w", err)
	}
	return sums, nil
}

// verify fails when asset has no digest or the file at path does not match it.
func (c checksums) verify(path, asset string) error {
	want, ok := c[asset]
	if !ok {
		return fmt.Errorf("no known checksum for %s", asset)
	}
	got, err := fileDigest(path)
	if err != nil {
		return fmt.Errorf("cannot compute checksum: %w", err)
	}
	if got != want {
		return fmt.Errorf("checksum mismatch for %s (expected %s, got %s)", asset, want, got)
	}
	return nil
}

func fileDigest(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// doer is satisfied by *http.Client.
type doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// fetch downloads url into a new temporary file in dir and returns its
// path. The caller removes it.
func fetch(ctx context.Context, url, dir string, client doer) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("GET %s: %s", url, resp.Status)
	}

	f, err := os.CreateTemp(dir, "download-*")
	if err != nil {
		return "", err
	}
	_, copyErr := io.Copy(f, resp.Body)
	closeErr := f.Close()
	if copyErr != nil || closeErr != nil {
		os.Remove(f.Name())
		if copyErr != nil {
			return "", copyErr
		}
		return "", closeErr
	}
	return f.Name(), nil
}
