package importer

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
)

const (
	DefaultBatchSize = 1000 // Default rows per batch
	MaxBatchSize     = 5000 // Maximum rows per batch
)

// Row is a validated CSV data row
type Row struct {
	Line        int
	Name        string
	SKU         string
	Description *string
	Active      bool
}

// RowError is a row that failed validation or could not be decoded
type RowError struct {
	Line   int
	Reason string
}

func (e RowError) String() string {
	return fmt.Sprintf("Row %d: %s", e.Line, e.Reason)
}

// Batch is one bounded group of parsed rows
type Batch struct {
	Rows    []Row
	Invalid []RowError
}

// Size returns the total number of rows the batch consumed from the stream
func (b *Batch) Size() int {
	return len(b.Rows) + len(b.Invalid)
}

// Parser decodes an uploaded CSV byte stream into batches of validated rows.
// It never materializes the whole file: rows are read lazily and a batch is
// discarded once the caller moves on. The sequence is finite and
// non-restartable.
type Parser struct {
	reader    *csv.Reader
	columns   map[string]int
	batchSize int
	line      int
	done      bool
}

// NewParser consumes the header row and maps it to the expected columns
// case-insensitively. A missing required column is a fatal parse error: no
// batches can be produced from such a stream.
func NewParser(r io.Reader, batchSize int) (*Parser, error) {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if batchSize > MaxBatchSize {
		batchSize = MaxBatchSize
	}

	buffered := bufio.NewReader(r)
	delimiter, err := detectDelimiter(buffered)
	if err != nil {
		return nil, err
	}

	reader := csv.NewReader(buffered)
	reader.Comma = delimiter
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("file has no header row")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}

	columns := make(map[string]int, len(header))
	for i, name := range header {
		name = strings.TrimSpace(strings.ToLower(name))
		name = strings.TrimSuffix(name, " *")
		name = strings.TrimPrefix(name, "\uFEFF")
		columns[name] = i
	}

	for _, required := range []string{"name", "sku"} {
		if _, ok := columns[required]; !ok {
			return nil, fmt.Errorf("required column %q not found in header", required)
		}
	}

	return &Parser{
		reader:    reader,
		columns:   columns,
		batchSize: batchSize,
		line:      1,
	}, nil
}

// Next returns the next batch of rows, or nil once the stream is exhausted.
// Malformed rows are reported as Invalid entries without aborting the stream;
// only unrecoverable read errors are returned as an error.
func (p *Parser) Next() (*Batch, error) {
	if p.done {
		return nil, nil
	}

	batch := &Batch{}
	for batch.Size() < p.batchSize {
		record, err := p.reader.Read()
		if err == io.EOF {
			p.done = true
			break
		}
		if err != nil {
			var parseErr *csv.ParseError
			if errors.As(err, &parseErr) {
				p.line++
				batch.Invalid = append(batch.Invalid, RowError{
					Line:   p.line,
					Reason: fmt.Sprintf("malformed row: %v", parseErr.Err),
				})
				continue
			}
			p.done = true
			return nil, fmt.Errorf("error reading line %d: %w", p.line+1, err)
		}

		p.line++
		if row, rowErr := p.buildRow(record); rowErr != nil {
			batch.Invalid = append(batch.Invalid, *rowErr)
		} else {
			batch.Rows = append(batch.Rows, *row)
		}
	}

	if batch.Size() == 0 {
		return nil, nil
	}
	return batch, nil
}

// buildRow maps a record to a Row, applying field validation
func (p *Parser) buildRow(record []string) (*Row, *RowError) {
	if isBlankRecord(record) {
		return nil, &RowError{Line: p.line, Reason: "empty row"}
	}

	field := func(name string) string {
		idx, ok := p.columns[name]
		if !ok || idx >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[idx])
	}

	name := field("name")
	sku := field("sku")
	if name == "" {
		return nil, &RowError{Line: p.line, Reason: "name is required"}
	}
	if sku == "" {
		return nil, &RowError{Line: p.line, Reason: "sku is required"}
	}
	if len(name) > 255 {
		return nil, &RowError{Line: p.line, Reason: "name exceeds 255 characters"}
	}
	if len(sku) > 255 {
		return nil, &RowError{Line: p.line, Reason: "sku exceeds 255 characters"}
	}

	row := &Row{
		Line:   p.line,
		Name:   name,
		SKU:    sku,
		Active: true,
	}
	if desc := field("description"); desc != "" {
		row.Description = &desc
	}
	if active := field("active"); active != "" {
		parsed, err := parseBoolish(active)
		if err != nil {
			return nil, &RowError{Line: p.line, Reason: fmt.Sprintf("invalid active value %q", active)}
		}
		row.Active = parsed
	}
	return row, nil
}

// detectDelimiter peeks at the first line and prefers tab over comma when
// both appear, matching the accepted upload formats
func detectDelimiter(r *bufio.Reader) (rune, error) {
	peeked, err := r.Peek(4096)
	if err != nil && err != io.EOF && err != bufio.ErrBufferFull {
		return 0, fmt.Errorf("failed to inspect file: %w", err)
	}
	firstLine := string(peeked)
	if idx := strings.IndexByte(firstLine, '\n'); idx >= 0 {
		firstLine = firstLine[:idx]
	}
	if strings.ContainsRune(firstLine, '\t') {
		return '\t', nil
	}
	return ',', nil
}

func parseBoolish(value string) (bool, error) {
	switch strings.ToLower(value) {
	case "true", "1", "yes", "y", "active":
		return true, nil
	case "false", "0", "no", "n", "inactive":
		return false, nil
	}
	return false, fmt.Errorf("not a boolean value")
}

func isBlankRecord(record []string) bool {
	for _, field := range record {
		if strings.TrimSpace(field) != "" {
			return false
		}
	}
	return true
}

// CountDataRows pre-scans a stream and counts non-empty lines after the
// header. The count is cheap (no CSV decoding) and used to seed the task's
// total so progress is determinate from the first batch.
func CountDataRows(r io.Reader) (int, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)

	count := 0
	sawHeader := false
	for scanner.Scan() {
		if strings.TrimSpace(scanner.Text()) == "" {
			continue
		}
		if !sawHeader {
			sawHeader = true
			continue
		}
		count++
	}
	if err := scanner.Err(); err != nil {
		return 0, fmt.Errorf("failed to count rows: %w", err)
	}
	return count, nil
}
