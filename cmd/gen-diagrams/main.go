// gen-diagrams renders the sample documents under examples/ for README
// documentation.
// Run: go run ./cmd/gen-diagrams
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rendis/flowlanes/internal/batch"
	"github.com/rendis/flowlanes/internal/codec"
	"github.com/rendis/flowlanes/internal/diagram"
	"github.com/rendis/flowlanes/internal/importer"
)

type rendered struct {
	ascii   string
	mermaid string
	png     []byte
}

func main() {
	ctx := context.Background()

	c, err := codec.New()
	if err != nil {
		fmt.Fprintf(os.Stderr, "codec error: %v\n", err)
		os.Exit(1)
	}
	imp, err := importer.New(c)
	if err != nil {
		fmt.Fprintf(os.Stderr, "importer error: %v\n", err)
		os.Exit(1)
	}

	samples, _ := filepath.Glob(filepath.Join("examples", "*"))
	outDir := filepath.Join("docs", "assets")
	os.MkdirAll(outDir, 0o755)

	home, _ := os.UserHomeDir()
	binDir := filepath.Join(home, ".flowlanes", "bin")

	out := make([]rendered, len(samples))
	indexes := make([]int, len(samples))
	for i := range indexes {
		indexes[i] = i
	}
	errs := batch.Each(ctx, 0, indexes, func(ctx context.Context, i int) error {
		data, err := os.ReadFile(samples[i])
		if err != nil {
			return err
		}
		res, err := imp.Import(ctx, data)
		if err != nil {
			return err
		}
		d := diagram.Build(res.Model, nil)
		out[i].ascii = diagram.RenderASCIIAuto(ctx, d, binDir)
		out[i].mermaid = diagram.RenderMermaid(d)
		out[i].png, err = diagram.RenderImage(ctx, d, diagram.ImagePNG)
		return err
	})

	for i, path := range samples {
		if errs[i] != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", path, errs[i])
			continue
		}
		base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		r := out[i]

		os.WriteFile(filepath.Join(outDir, base+"-ascii.txt"), []byte(r.ascii), 0o644)
		fmt.Printf("=== %s: ASCII ===\n%s\n", base, r.ascii)

		os.WriteFile(filepath.Join(outDir, base+"-mermaid.md"), []byte("```mermaid\n"+r.mermaid+"\n```\n"), 0o644)
		fmt.Printf("=== %s: Mermaid ===\n%s\n", base, r.mermaid)

		pngPath := filepath.Join(outDir, base+".png")
		os.WriteFile(pngPath, r.png, 0o644)
		fmt.Printf("=== %s: Image (PNG) ===\nWritten: %s (%d bytes)\n", base, pngPath, len(r.png))
	}
}
