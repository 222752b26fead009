package extract

import (
	"bufio"
	"strconv"
	"strings"
)

// Table parses whitespace-delimited rows of extractor output. A row where
// no token parses as a float declares a new set of active column headers; a
// row with at least one numeric token is a data row whose Nth token appends
// to the Nth active header's series. Headers accumulate across subtables: a
// later header row only redirects where subsequent values append, existing
// series are never reset.
func Table(text string) (Data, error) {
	data := make(Data)
	var headers []string
	scanner := bufio.NewScanner(strings.NewReader(text))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		tokens := strings.Fields(scanner.Text())
		if len(tokens) == 0 {
			continue
		}
		numeric := false
		for _, tok := range tokens {
			if _, err := strconv.ParseFloat(tok, 64); err == nil {
				numeric = true
				break
			}
		}
		if !numeric {
			headers = tokens
			continue
		}
		for i, tok := range tokens {
			if i >= len(headers) {
				break
			}
			data[headers[i]] = append(data[headers[i]], ParseToken(tok))
		}
	}
	return data, scanner.Err()
}
