package extract

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Tagged scans the file at path for lines which, ignoring leading
// whitespace, start with the tag literal. On a matching line the tokens
// after the tag form a compound key up to the first token that parses as a
// float; that token becomes the value. Trailing '=' or ':' characters are
// stripped from the key and an empty key defaults to "data". Only the first
// numeric token on a line is taken; repeated keys accumulate values in file
// order.
func Tagged(tag, path string) (Data, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open data file: %w", err)
	}
	defer f.Close()

	data := make(Data)
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(strings.TrimLeft(line, " \t"), tag) {
			continue
		}
		tokens := strings.Fields(line)
		if len(tokens) < 2 {
			continue
		}
		var keyTokens []string
		for _, tok := range tokens[1:] {
			val, err := strconv.ParseFloat(tok, 64)
			if err != nil {
				// Separator characters ('=', ':') between key and value are
				// not part of the key.
				if tok = strings.TrimRight(tok, "=:"); tok != "" {
					keyTokens = append(keyTokens, tok)
				}
				continue
			}
			key := strings.Join(keyTokens, "_")
			if key == "" {
				key = "data"
			}
			data[key] = append(data[key], Num(val))
			break
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read data file %s: %w", path, err)
	}
	return data, nil
}
