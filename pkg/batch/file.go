package batch

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/morezero/autodraw-agent/pkg/normalizer"
	"github.com/morezero/autodraw-agent/pkg/spec"
)

const fileLogPrefix = "batch:file"

// LoadBatchFile reads one request per line from path.
func LoadBatchFile(path string) ([]normalizer.RawInput, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%s - open batch file: %w", fileLogPrefix, err)
	}
	defer f.Close()
	return ParseBatch(f)
}

// ParseBatch reads one request per line. Blank lines and lines starting with
// '#' are skipped. A line starting with '{' is a structured specification,
// anything else is free text.
func ParseBatch(r io.Reader) ([]normalizer.RawInput, error) {
	var inputs []normalizer.RawInput
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if strings.HasPrefix(line, "{") {
			var s spec.Specification
			if err := json.Unmarshal([]byte(line), &s); err != nil {
				return nil, fmt.Errorf("%s - line %d: %w", fileLogPrefix, lineNo, err)
			}
			inputs = append(inputs, normalizer.RawInput{Structured: &s})
			continue
		}
		inputs = append(inputs, normalizer.RawInput{Text: line})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%s - read batch: %w", fileLogPrefix, err)
	}
	return inputs, nil
}
