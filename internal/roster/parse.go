// Package roster loads the encrypted learner roster and validates it.
package roster

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/xuri/excelize/v2"

	"github.com/msomdec/microlearn/internal/domain"
)

// Format identifies the tabular encoding of a decrypted roster.
type Format string

const (
	FormatXLSX Format = "xlsx"
	FormatCSV  Format = "csv"
)

// ParseFormat validates a configured format name.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatXLSX, FormatCSV:
		return f, nil
	default:
		return "", fmt.Errorf("%w: unknown roster format %q", domain.ErrInvalidInput, s)
	}
}

const (
	columnKey     = "regno"
	columnName    = "name"
	columnContact = "email"
)

// row is one roster line before it becomes a domain.Learner.
type row struct {
	RegNo string `validate:"required,max=64"`
	Name  string `validate:"required,max=200"`
	Email string `validate:"omitempty,email"`
}

var validate = validator.New()

// Parse decodes a decrypted roster table into learners. The first row is
// the header. Any malformed row or duplicate registration number fails the
// whole parse.
func Parse(data []byte, format Format) ([]domain.Learner, error) {
	var (
		records [][]string
		err     error
	)
	switch format {
	case FormatXLSX:
		records, err = readXLSX(data)
	case FormatCSV:
		records, err = readCSV(data)
	default:
		return nil, fmt.Errorf("%w: unknown roster format %q", domain.ErrInvalidInput, format)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrMalformedRoster, err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%w: missing header row", domain.ErrMalformedRoster)
	}

	header := make([]string, len(records[0]))
	index := make(map[string]int, len(header))
	for i, h := range records[0] {
		h = strings.TrimSpace(h)
		header[i] = h
		index[strings.ToLower(h)] = i
	}
	for _, required := range []string{columnKey, columnName} {
		if _, ok := index[required]; !ok {
			return nil, fmt.Errorf("%w: missing %q column", domain.ErrMalformedRoster, required)
		}
	}

	learners := make([]domain.Learner, 0, len(records)-1)
	seen := make(map[domain.LearnerKey]int, len(records)-1)
	for i, rec := range records[1:] {
		line := i + 2
		if isBlank(rec) {
			continue
		}
		r := row{
			RegNo: cell(rec, index, columnKey),
			Name:  cell(rec, index, columnName),
			Email: cell(rec, index, columnContact),
		}
		if err := validate.Struct(r); err != nil {
			return nil, rowError(line, err)
		}
		key, err := domain.NormalizeKey(r.RegNo)
		if err != nil {
			return nil, fmt.Errorf("%w: row %d: %v", domain.ErrMalformedRoster, line, err)
		}
		if prev, dup := seen[key]; dup {
			return nil, fmt.Errorf("%w: row %d: registration number %s duplicates row %d", domain.ErrMalformedRoster, line, key, prev)
		}
		seen[key] = line

		attrs := make(map[string]string)
		for col, name := range header {
			switch strings.ToLower(name) {
			case columnKey, columnName, columnContact, "":
				continue
			}
			if col < len(rec) {
				attrs[name] = strings.TrimSpace(rec[col])
			}
		}

		learners = append(learners, domain.Learner{
			Key:        key,
			Name:       r.Name,
			Contact:    r.Email,
			Attributes: attrs,
		})
	}
	return learners, nil
}

func rowError(line int, err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return fmt.Errorf("%w: row %d: field %s failed %q", domain.ErrMalformedRoster, line, fe.Field(), fe.Tag())
	}
	return fmt.Errorf("%w: row %d: %v", domain.ErrMalformedRoster, line, err)
}

func cell(rec []string, index map[string]int, column string) string {
	i, ok := index[column]
	if !ok || i >= len(rec) {
		return ""
	}
	return strings.TrimSpace(rec[i])
}

func isBlank(rec []string) bool {
	for _, c := range rec {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

func readXLSX(data []byte) ([][]string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, errors.New("workbook has no sheets")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read sheet %s: %w", sheets[0], err)
	}
	return rows, nil
}

func readCSV(data []byte) ([][]string, error) {
	r := csv.NewReader(bytes.NewReader(bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))))
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true
	var rows [][]string
	for {
		rec, err := r.Read()
		if err == io.EOF {
			return rows, nil
		}
		if err != nil {
			return nil, fmt.Errorf("read csv: %w", err)
		}
		rows = append(rows, rec)
	}
}
