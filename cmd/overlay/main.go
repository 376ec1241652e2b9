// Command overlay runs one check request offline and writes the coverage
// overlay as a PNG.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/labstack/gommon/log"

	"github.com/kyiku/tangram-back/internal/coverage"
	"github.com/kyiku/tangram-back/internal/worker"
)

func main() {
	logger := log.New("overlay")
	if err := run(os.Args[1:], os.Stdout); err != nil {
		logger.Fatalf("%v", err)
	}
}

func run(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("overlay", flag.ContinueOnError)
	in := fs.String("in", "", "check request JSON (default stdin)")
	out := fs.String("out", "overlay.png", "output PNG path")
	if err := fs.Parse(args); err != nil {
		return err
	}

	var src io.Reader = os.Stdin
	if *in != "" {
		f, err := os.Open(*in)
		if err != nil {
			return fmt.Errorf("failed to open request: %w", err)
		}
		defer f.Close()
		src = f
	}

	var req worker.Request
	if err := json.NewDecoder(src).Decode(&req); err != nil {
		return fmt.Errorf("failed to decode request: %w", err)
	}
	req.Type = worker.TypeCheck

	resp := worker.NewEngine().Handle(req)
	if resp.Type == worker.TypeError {
		return fmt.Errorf("check failed: %s", resp.Error)
	}
	fmt.Fprintf(stdout, "uncovered=%d overlap=%d (%dx%d)\n", resp.Uncovered, resp.Overlap, resp.Width, resp.Height)

	res := coverage.Result{
		Uncovered: resp.Uncovered,
		Overlap:   resp.Overlap,
		Width:     resp.Width,
		Height:    resp.Height,
		Overlay:   resp.Overlay,
	}
	if res.Overlay == nil {
		fmt.Fprintln(stdout, "no silhouette, nothing written")
		return nil
	}

	f, err := os.Create(*out)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", *out, err)
	}
	if err := res.EncodePNG(f); err != nil {
		f.Close()
		return fmt.Errorf("failed to encode overlay: %w", err)
	}
	return f.Close()
}
