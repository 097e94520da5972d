package cmd

import (
	"bufio"
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/klauspost/compress/gzip"
	"github.com/urfave/cli/v2"

	"github.com/justapithecus/sieve/cli/render"
	"github.com/justapithecus/sieve/container"
	"github.com/justapithecus/sieve/types"
)

// PackRecord is one JSON line accepted by the pack command.
// Body is taken as text; BodyB64 carries binary bodies and wins when set.
type PackRecord struct {
	Kind    string      `json:"kind"`
	Headers [][2]string `json:"headers"`
	Body    string      `json:"body"`
	BodyB64 string      `json:"body_b64"`
}

// Record converts the line into a record.
func (p PackRecord) Record() (*types.Record, error) {
	if p.Kind == "" {
		return nil, errors.New("kind is required")
	}
	body := []byte(p.Body)
	if p.BodyB64 != "" {
		decoded, err := base64.StdEncoding.DecodeString(p.BodyB64)
		if err != nil {
			return nil, fmt.Errorf("invalid body_b64: %w", err)
		}
		body = decoded
	}
	headers := make(types.Headers, len(p.Headers))
	for i, h := range p.Headers {
		headers[i] = types.Header{Name: h[0], Value: h[1]}
	}
	return &types.Record{Kind: types.Kind(p.Kind), Headers: headers, Body: body}, nil
}

// PackResponse summarizes a pack.
type PackResponse struct {
	Output     string `json:"output"`
	Records    int    `json:"records"`
	Bytes      int64  `json:"bytes"`
	Compressed bool   `json:"compressed"`
}

// PackCommand returns the pack command.
// Pack builds a container archive from JSON lines.
func PackCommand() *cli.Command {
	return &cli.Command{
		Name:      "pack",
		Usage:     "Build an archive from JSON-lines records",
		ArgsUsage: "<input.jsonl|->",
		Flags: outputFlags(
			&cli.StringFlag{
				Name:     "output",
				Aliases:  []string{"o"},
				Usage:    "Archive path to create",
				Required: true,
			},
			&cli.IntFlag{
				Name:  "block-records",
				Usage: "Records per compressed block (0 writes an uncompressed archive)",
			},
			&cli.IntFlag{
				Name:  "level",
				Usage: "gzip level for compressed blocks (1-9)",
				Value: gzip.DefaultCompression,
			},
		),
		Action: packAction,
	}
}

func packAction(c *cli.Context) error {
	if c.NArg() < 1 {
		return cli.Exit("input required (path or - for stdin)", exitInvalidInput)
	}
	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}
	if err := rejectTUI(c, "pack"); err != nil {
		return err
	}

	level := c.Int("level")
	if level != gzip.DefaultCompression && (level < gzip.BestSpeed || level > gzip.BestCompression) {
		return cli.Exit(fmt.Sprintf("--level must be between %d and %d, got %d", gzip.BestSpeed, gzip.BestCompression, level), exitInvalidInput)
	}

	var in io.Reader = os.Stdin
	if path := c.Args().First(); path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return cli.Exit(fmt.Sprintf("failed to open input: %v", err), exitInvalidInput)
		}
		defer func() { _ = f.Close() }()
		in = f
	}

	resp, err := packFile(in, c.String("output"),
		container.WithBlockRecords(c.Int("block-records")),
		container.WithCompressionLevel(level),
	)
	if err != nil {
		return cli.Exit(err.Error(), exitAborted)
	}
	return r.Render(resp)
}

// packFile writes every record line of in to a new archive at path.
// The archive is removed if any line fails.
func packFile(in io.Reader, path string, opts ...container.WriterOption) (resp *PackResponse, err error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create archive: %w", err)
	}
	defer func() {
		if cerr := f.Close(); err == nil && cerr != nil {
			err = fmt.Errorf("failed to close archive: %w", cerr)
		}
		if err != nil {
			_ = os.Remove(path)
		}
	}()

	bw := bufio.NewWriter(f)
	w := container.NewWriter(bw, opts...)
	n, err := packRecords(in, w)
	if err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("failed to finish archive: %w", err)
	}
	if err := bw.Flush(); err != nil {
		return nil, fmt.Errorf("failed to write archive: %w", err)
	}
	return &PackResponse{Output: path, Records: n, Bytes: w.Offset(), Compressed: w.Compressed()}, nil
}

// packRecords appends every non-blank line of in to w.
func packRecords(in io.Reader, w *container.Writer) (int, error) {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), container.MaxPayloadSize)
	n := 0
	for line := 1; scanner.Scan(); line++ {
		raw := bytes.TrimSpace(scanner.Bytes())
		if len(raw) == 0 {
			continue
		}
		var pr PackRecord
		if err := json.Unmarshal(raw, &pr); err != nil {
			return n, fmt.Errorf("line %d: %w", line, err)
		}
		rec, err := pr.Record()
		if err != nil {
			return n, fmt.Errorf("line %d: %w", line, err)
		}
		if _, err := w.Append(rec); err != nil {
			return n, fmt.Errorf("line %d: %w", line, err)
		}
		n++
	}
	if err := scanner.Err(); err != nil {
		return n, fmt.Errorf("failed to read input: %w", err)
	}
	return n, nil
}
