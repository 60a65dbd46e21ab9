package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"academic-risk/internal/ml"

	"github.com/rs/zerolog/log"
)

// LoadCSV reads a headed CSV of numeric columns. Rows with a value that does
// not parse are skipped and counted in the log.
func LoadCSV(path string) (*ml.Dataset, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open CSV file: %w", err)
	}
	defer file.Close()

	ds, skipped, err := ReadCSV(file)
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("file", path).
		Int("rows", ds.Len()).
		Int("skipped", skipped).
		Msg("CSV data loaded successfully")
	return ds, nil
}

// ReadCSV parses r and returns the dataset plus the number of skipped rows.
func ReadCSV(r io.Reader) (*ml.Dataset, int, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read CSV header: %w", err)
	}

	ds := &ml.Dataset{Columns: header}
	skipped := 0
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var perr *csv.ParseError
			if errors.As(err, &perr) {
				skipped++
				continue
			}
			return nil, skipped, fmt.Errorf("failed to read CSV: %w", err)
		}

		row := make([]float64, len(header))
		ok := true
		for i := range header {
			v, err := strconv.ParseFloat(record[i], 64)
			if err != nil {
				ok = false
				break
			}
			row[i] = v
		}
		if !ok {
			skipped++
			continue
		}
		ds.Rows = append(ds.Rows, row)
	}
	return ds, skipped, nil
}

// WriteCSV writes ds with a header row.
func WriteCSV(path string, ds *ml.Dataset) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create CSV file: %w", err)
	}
	defer file.Close()

	w := csv.NewWriter(file)
	if err := w.Write(ds.Columns); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}
	record := make([]string, len(ds.Columns))
	for _, row := range ds.Rows {
		for i, v := range row {
			record[i] = strconv.FormatFloat(v, 'f', -1, 64)
		}
		if err := w.Write(record); err != nil {
			return fmt.Errorf("failed to write CSV row: %w", err)
		}
	}
	w.Flush()
	return w.Error()
}
