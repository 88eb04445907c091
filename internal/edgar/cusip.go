package edgar

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"
)

// LoadCUSIPMap reads a cusip,symbol CSV into a lookup map. Header row is
// required; extra columns are ignored.
func LoadCUSIPMap(path string) (map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open cusip map: %w", err)
	}
	defer f.Close()
	return ReadCUSIPMap(f)
}

// ReadCUSIPMap parses the CSV from any reader.
func ReadCUSIPMap(r io.Reader) (map[string]string, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read cusip header: %w", err)
	}
	cusipCol, symbolCol := -1, -1
	for i, name := range header {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "cusip":
			cusipCol = i
		case "symbol", "ticker":
			symbolCol = i
		}
	}
	if cusipCol < 0 || symbolCol < 0 {
		return nil, fmt.Errorf("cusip map needs cusip and symbol columns, got %v", header)
	}

	out := map[string]string{}
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read cusip row: %w", err)
		}
		if cusipCol >= len(record) || symbolCol >= len(record) {
			continue
		}
		cusip := strings.TrimSpace(record[cusipCol])
		symbol := strings.ToUpper(strings.TrimSpace(record[symbolCol]))
		if cusip == "" || symbol == "" {
			continue
		}
		out[cusip] = symbol
	}
	return out, nil
}

// EnrichTickers fills Holding.Ticker from the CUSIP map. Unmapped positions
// are left blank.
func EnrichTickers(holdings []Holding, cusipToTicker map[string]string) {
	for i := range holdings {
		if holdings[i].Ticker != "" {
			continue
		}
		holdings[i].Ticker = cusipToTicker[holdings[i].CUSIP]
	}
}
