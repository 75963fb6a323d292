package main

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

const mermaidASCIIVersion = "1.1.0"

// SHA-256 checksums for mermaid-ascii v1.1.0 release assets.
var mermaidASCIIChecksums = checksums{
	"mermaid-ascii_Darwin_arm64.tar.gz":  "068d2ff869d4921655cab471500fffd8c3ed28155b100518ed3cf3835d53d3d0",
	"mermaid-ascii_Darwin_x86_64.tar.gz": "0cd4c9c01a03284fe866f39a1ce1aaee1e6a2fbd91deedc4ec254cb87622eec8",
	"mermaid-ascii_Linux_arm64.tar.gz":   "3b7d0a95141bfbca838e445ea802ffb7fba8873b3c4af498482c84f83526f2db",
	"mermaid-ascii_Linux_x86_64.tar.gz":  "838ea93d561b3bc83aa15531c6ed7d2d261a8edc521d5484f7e91fe831cc4c65",
}

func (a *app) installCmd() *cobra.Command {
	var (
		skipBinary    bool
		checksumsPath string
	)
	cmd := &cobra.Command{
		Use:   "install",
		Short: "Write ~/.flowlanes/settings.yaml and fetch the mermaid-ascii renderer",
		Long: `Write the effective configuration to the settings file and download
mermaid-ascii into mermaid_ascii_dir. The download is verified against
pinned SHA-256 checksums, or against a checksums file given with
--checksums. A failed download is not fatal: ASCII rendering falls back
to the built-in renderer.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path := a.configPath
			if path == "" {
				path = settingsPath()
			}
			if err := writeSettings(path, a.cfg); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Config written to %s\n", path)

			if skipBinary {
				return nil
			}
			sums := mermaidASCIIChecksums
			if checksumsPath != "" {
				f, err := os.Open(checksumsPath)
				if err != nil {
					return err
				}
				defer f.Close()
				if sums, err = readChecksums(f); err != nil {
					return err
				}
			}
			client := &http.Client{Timeout: 60 * time.Second}
			installMermaidASCII(cmd.Context(), cmd.OutOrStdout(), cmd.ErrOrStderr(), a.cfg.MermaidASCIIDir, sums, client)
			return nil
		},
	}
	cmd.Flags().BoolVar(&skipBinary, "skip-binary", false, "only write the settings file")
	cmd.Flags().StringVar(&checksumsPath, "checksums", "", "checksums file (shasum -a 256 output) to verify against")
	return cmd
}

// writeSettings saves cfg as YAML, creating the parent directory.
func writeSettings(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("cannot create %s: %w", filepath.Dir(path), err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("cannot write %s: %w", path, err)
	}
	return nil
}

// installMermaidASCII downloads the mermaid-ascii binary to binDir.
// Non-fatal: prints a warning and continues if the download fails.
func installMermaidASCII(ctx context.Context, stdout, stderr io.Writer, binDir string, sums checksums, client doer) {
	destPath := filepath.Join(binDir, "mermaid-ascii")

	if _, err := os.Stat(destPath); err == nil {
		fmt.Fprintf(stdout, "mermaid-ascii already installed at %s\n", destPath)
		return
	}

	assetName, err := mermaidASCIIAssetName(runtime.GOOS, runtime.GOARCH)
	if err != nil {
		fmt.Fprintf(stderr, "Warning: %v; ASCII diagrams will use fallback renderer\n", err)
		return
	}

	url := fmt.Sprintf("https://github.com/AlexanderGrooff/mermaid-ascii/releases/download/%s/%s",
		mermaidASCIIVersion, assetName)

	fmt.Fprintf(stdout, "Downloading mermaid-ascii %s...\n", mermaidASCIIVersion)

	if err := os.MkdirAll(binDir, 0o755); err != nil {
		fmt.Fprintf(stderr, "Warning: cannot create %s: %v\n", binDir, err)
		return
	}

	tmpPath, err := fetch(ctx, url, binDir, client)
	if err != nil {
		fmt.Fprintf(stderr, "Warning: download failed: %v; ASCII diagrams will use fallback renderer\n", err)
		return
	}
	defer os.Remove(tmpPath)

	if err := sums.verify(tmpPath, assetName); err != nil {
		fmt.Fprintf(stderr, "Warning: %v; ASCII diagrams will use fallback renderer\n", err)
		return
	}

	f, err := os.Open(tmpPath)
	if err != nil {
		fmt.Fprintf(stderr, "Warning: cannot open archive: %v\n", err)
		return
	}
	defer f.Close()

	if err := extractTarGz(f, binDir, "mermaid-ascii"); err != nil {
		fmt.Fprintf(stderr, "Warning: extraction failed: %v; ASCII diagrams will use fallback renderer\n", err)
		_ = os.Remove(destPath)
		return
	}

	if err := os.Chmod(destPath, 0o755); err != nil {
		fmt.Fprintf(stderr, "Warning: chmod failed: %v\n", err)
	}

	fmt.Fprintf(stdout, "mermaid-ascii installed to %s\n", destPath)
}

// mermaidASCIIAssetName returns the GitHub release asset name for a platform.
func mermaidASCIIAssetName(goos, goarch string) (string, error) {
	osName := ""
	switch goos {
	case "darwin":
		osName = "Darwin"
	case "linux":
		osName = "Linux"
	default:
		return "", fmt.Errorf("mermaid-ascii: unsupported OS %q", goos)
	}

	archName := ""
	switch goarch {
	case "amd64":
		archName = "x86_64"
	case "arm64":
		archName = "arm64"
	case "386":
		archName = "i386"
	default:
		return "", fmt.Errorf("mermaid-ascii: unsupported architecture %q", goarch)
	}

	return fmt.Sprintf("mermaid-ascii_%s_%s.tar.gz", osName, archName), nil
}

// extractTarGz extracts a specific file from a tar.gz archive into destDir.
func extractTarGz(r io.Reader, destDir, targetName string) error {
	gz, err := gzip.NewReader(r)
	if err != nil {
		return fmt.Errorf("gzip: %w", err)
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return fmt.Errorf("file %q not found in archive", targetName)
		}
		if err != nil {
			return fmt.Errorf("tar: %w", err)
		}

		// Archives may carry a directory prefix.
		if filepath.Base(hdr.Name) != targetName || hdr.Typeflag != tar.TypeReg {
			continue
		}
		if strings.Contains(hdr.Name, "..") {
			return fmt.Errorf("tar: unsafe entry %q", hdr.Name)
		}

		destPath := filepath.Join(destDir, targetName)
		f, err := os.OpenFile(destPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o755)
		if err != nil {
			return fmt.Errorf("create %s: %w", destPath, err)
		}
		if _, err := io.Copy(f, tr); err != nil { //nolint:gosec // bounded by tar header size
			f.Close()
			return fmt.Errorf("write %s: %w", destPath, err)
		}
		return f.Close()
	}
}
