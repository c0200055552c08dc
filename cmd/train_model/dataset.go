package main

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"

	"mlplayground/ml"
)

var requiredColumns = []string{"nome", "idade", "cor", "localizacao"}

// decoderFor maps an -encoding flag value to a text decoder. UTF-8 input is
// returned unchanged.
func decoderFor(name string) (*encoding.Decoder, error) {
	switch strings.ToLower(strings.ReplaceAll(name, "_", "-")) {
	case "", "utf-8", "utf8":
		return nil, nil
	case "latin1", "iso-8859-1":
		return charmap.ISO8859_1.NewDecoder(), nil
	case "windows-1252", "cp1252":
		return charmap.Windows1252.NewDecoder(), nil
	default:
		return nil, fmt.Errorf("unsupported encoding %q", name)
	}
}

// readDataset parses a CSV with a header row naming at least nome, idade,
// cor and localizacao. An optional rotulo column supplies training labels;
// when present every row must carry one.
func readDataset(r io.Reader, enc string) ([]ml.Record, []string, error) {
	dec, err := decoderFor(enc)
	if err != nil {
		return nil, nil, err
	}
	if dec != nil {
		r = dec.Reader(r)
	}

	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil, ml.ErrEmptyDataset
	}
	if err != nil {
		return nil, nil, fmt.Errorf("read header: %w", err)
	}

	columns := make(map[string]int, len(header))
	for i, name := range header {
		columns[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, name := range requiredColumns {
		if _, ok := columns[name]; !ok {
			return nil, nil, fmt.Errorf("missing column %q", name)
		}
	}
	labelCol, hasLabels := columns["rotulo"]

	var (
		records []ml.Record
		labels  []string
	)
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("read row: %w", err)
		}
		line, _ := reader.FieldPos(0)

		age, err := strconv.ParseFloat(strings.TrimSpace(row[columns["idade"]]), 64)
		if err != nil {
			return nil, nil, fmt.Errorf("line %d: idade: %w", line, err)
		}
		records = append(records, ml.Record{
			ID:        strings.TrimSpace(row[columns["nome"]]),
			Numeric:   age,
			CategoryA: strings.TrimSpace(row[columns["cor"]]),
			CategoryB: strings.TrimSpace(row[columns["localizacao"]]),
		})
		if hasLabels {
			label := strings.TrimSpace(row[labelCol])
			if label == "" {
				return nil, nil, fmt.Errorf("line %d: missing rotulo", line)
			}
			labels = append(labels, label)
		}
	}
	if len(records) == 0 {
		return nil, nil, ml.ErrEmptyDataset
	}
	return records, labels, nil
}
