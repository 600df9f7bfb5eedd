package dataset

import (
	"encoding/csv"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/YuminosukeSato/tidytune/pkg/errors"
)

// CSVOptions configures ReadCSV.
type CSVOptions struct {
	// Delimiter defaults to ','.
	Delimiter rune
	// NATokens are read as missing. Defaults to "", "NA", "NaN", "N/A".
	NATokens []string
	// Nominal forces the named columns to be nominal even if they parse as numbers
	// (zip codes, ids, 0/1 outcomes).
	Nominal []string
	// TrimSpace trims leading and trailing space from every field.
	TrimSpace bool
}

var defaultNATokens = []string{"", "NA", "NaN", "N/A"}

// ReadCSV reads a header row followed by records. A column is numeric when
// every non-missing field parses as a float, nominal otherwise. A column that
// is mostly numeric but has a few unparseable fields becomes nominal and
// raises a DataConversionWarning.
func ReadCSV(r io.Reader, opts CSVOptions) (*Frame, error) {
	reader := csv.NewReader(r)
	if opts.Delimiter != 0 {
		reader.Comma = opts.Delimiter
	}
	reader.FieldsPerRecord = 0

	header, err := reader.Read()
	if err == io.EOF {
		return nil, errors.Wrap(errors.ErrEmptyData, "csv: missing header")
	}
	if err != nil {
		return nil, errors.Wrap(err, "csv: read header")
	}
	if opts.TrimSpace {
		for i := range header {
			header[i] = strings.TrimSpace(header[i])
		}
	}

	raw := make([][]string, len(header))
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrap(err, "csv: read row")
		}
		for j, field := range record {
			if opts.TrimSpace {
				field = strings.TrimSpace(field)
			}
			raw[j] = append(raw[j], field)
		}
	}

	na := opts.NATokens
	if na == nil {
		na = defaultNATokens
	}
	isNA := make(map[string]bool, len(na))
	for _, t := range na {
		isNA[t] = true
	}
	forced := make(map[string]bool, len(opts.Nominal))
	for _, n := range opts.Nominal {
		forced[n] = true
	}

	cols := make([]*Column, len(header))
	for j, name := range header {
		cols[j] = inferColumn(name, raw[j], isNA, forced[name])
	}
	return NewFrame(cols...)
}

func inferColumn(name string, fields []string, isNA map[string]bool, nominal bool) *Column {
	if !nominal {
		nums := make([]float64, len(fields))
		bad, present := 0, 0
		var badToken string
		for i, s := range fields {
			if isNA[s] {
				nums[i] = math.NaN()
				continue
			}
			present++
			v, err := strconv.ParseFloat(s, 64)
			if err != nil {
				bad++
				badToken = s
				continue
			}
			nums[i] = v
		}
		if bad == 0 {
			return NewNumeric(name, nums)
		}
		if present > 0 && float64(bad)/float64(present) < 0.1 {
			errors.Warn(errors.NewDataConversionWarning(name, "numeric", "nominal",
				"non-numeric token '"+badToken+"'"))
		}
	}

	strs := make([]string, len(fields))
	for i, s := range fields {
		if !isNA[s] {
			strs[i] = s
		}
	}
	return NewNominal(name, strs)
}
