package repository

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	appErrors "github.com/unclebandit/bulk-dispatcher/internal/errors"
	"github.com/unclebandit/bulk-dispatcher/internal/model"
)

// RecipientRepository loads recipients from CSV. Every cell is kept as a
// string so phone numbers never pick up numeric formatting.
type RecipientRepository struct{}

// LoadCSV reads the file at path and returns its header and rows.
func (r *RecipientRepository) LoadCSV(path string) ([]string, []model.Recipient, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, appErrors.NewLoadError("recipients", err)
	}
	defer f.Close()

	headers, rows, err := r.Read(f)
	if err != nil {
		return nil, nil, appErrors.NewLoadError("recipients", err)
	}
	return headers, rows, nil
}

// Read parses CSV from any reader. Short rows are padded with empty values.
func (r *RecipientRepository) Read(in io.Reader) ([]string, []model.Recipient, error) {
	reader := csv.NewReader(in)
	reader.LazyQuotes = true
	reader.FieldsPerRecord = -1

	headers, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil, fmt.Errorf("empty csv")
		}
		return nil, nil, fmt.Errorf("read csv header: %w", err)
	}
	for i, h := range headers {
		headers[i] = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
	}

	var rows []model.Recipient
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("read csv row %d: %w", len(rows)+2, err)
		}
		rec := make(model.Recipient, len(headers))
		for i, h := range headers {
			if i < len(record) {
				rec[h] = record[i]
			} else {
				rec[h] = ""
			}
		}
		rows = append(rows, rec)
	}
	return headers, rows, nil
}
