// Package headers loads the static per-provider request headers that seed a
// provider session.
package headers

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/adg-dev/khaata/internal/common"
)

// Load reads a line-oriented "key: value" header file. A line without the
// ": " separator makes the whole file unusable.
func Load(path string) (map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open header file: %w", err)
	}
	defer func() { _ = f.Close() }()

	hdrs := make(map[string]string)
	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		key, value, found := strings.Cut(line, ": ")
		if !found {
			return nil, fmt.Errorf("%w: %s line %d is missing the \": \" separator", common.ErrInvalidHeaderFile, path, lineNo)
		}
		hdrs[strings.TrimSpace(key)] = strings.TrimSpace(value)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read header file: %w", err)
	}

	return hdrs, nil
}
