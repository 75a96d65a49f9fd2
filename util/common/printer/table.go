package printer

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"github.com/pterm/pterm"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

const (
	FormatTable = "table"
	FormatJSON  = "json"
	FormatYAML  = "yaml"
)

// ColumnMapping defines a mapping between original field names and display names
type ColumnMapping [][]string

// parseTableData converts a JSON string + column mapping into headers and string rows.
func parseTableData(jsonStr string, mapping ColumnMapping) ([]string, [][]string, error) {
	var rows []map[string]interface{}
	if err := json.Unmarshal([]byte(jsonStr), &rows); err != nil {
		return nil, nil, fmt.Errorf("parse json: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil, nil
	}

	var header []string
	if len(mapping) > 0 {
		for _, m := range mapping {
			if len(m) >= 2 {
				header = append(header, m[1])
			}
		}
	} else {
		for k := range rows[0] {
			header = append(header, k)
		}
		sort.Strings(header)
	}

	var tableRows [][]string
	for _, r := range rows {
		row := make([]string, len(header))
		for i := range header {
			key := header[i]
			if len(mapping) > 0 {
				key = mapping[i][0]
			}
			val, ok := r[key]
			if !ok || val == nil || val == "" {
				row[i] = "-"
				continue
			}
			row[i] = fmt.Sprint(val)
		}
		tableRows = append(tableRows, row)
	}

	return header, tableRows, nil
}

// TableOptions provides configuration for table output
type TableOptions struct {
	// ColumnMapping defines custom column ordering and display names
	// Format: [["originalField", "Display Name"], ...]
	ColumnMapping ColumnMapping

	// Footer is printed below the table when set.
	Footer string
}

// PrintTableWithOptions prints a slice of records as a boxed table.
func PrintTableWithOptions(res any, options TableOptions) error {
	raw, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("failed to marshal data to JSON: %w", err)
	}

	headers, rows, err := parseTableData(string(raw), options.ColumnMapping)
	if err != nil {
		log.Error().Msgf("failed to parse table data: %v", err)
		return err
	}
	if headers == nil {
		pterm.Info.Println("Nothing to display")
		return nil
	}

	data := pterm.TableData{headers}
	data = append(data, rows...)
	if err := pterm.DefaultTable.WithHasHeader().WithBoxed(true).WithData(data).Render(); err != nil {
		log.Error().Msgf("failed to render table: %v", err)
		return err
	}
	if options.Footer != "" {
		pterm.Println(options.Footer)
	}
	return nil
}

// Fprint writes res in the requested format. Unknown formats fall back to a
// table on stdout.
func Fprint(w io.Writer, res any, format string, options TableOptions) error {
	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	case FormatYAML:
		// round-trip through JSON so the json tags drive the field names
		raw, err := json.Marshal(res)
		if err != nil {
			return fmt.Errorf("failed to marshal data to JSON: %w", err)
		}
		var generic interface{}
		if err := yaml.Unmarshal(raw, &generic); err != nil {
			return err
		}
		enc := yaml.NewEncoder(w)
		defer enc.Close()
		enc.SetIndent(2)
		return enc.Encode(generic)
	default:
		return PrintTableWithOptions(res, options)
	}
}
