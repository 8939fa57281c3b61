package catalog

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/conorfennell/murajaah/internal/domain"
)

const (
	numberPrefix = "S:"
	namePrefix   = "N:"
	juzPrefix    = "J:"
	separator    = "---"
	comment      = "#"
)

type state int

const (
	seeking state = iota
	readingEntry
)

// ParseFile reads a catalog file from the given path.
func ParseFile(path string) ([]domain.Surah, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	return Parse(file)
}

// Parse reads Surah entries from r. An entry is a block of "S:", "N:" and
// "J:" lines; blocks are separated by "---" or by the next "S:" line.
func Parse(r io.Reader) ([]domain.Surah, error) {
	scanner := bufio.NewScanner(r)
	var surahs []domain.Surah
	var current domain.Surah
	currentState := seeking
	lineNo := 0

	finishEntry := func() error {
		if currentState == seeking {
			return nil
		}
		if current.Name == "" || len(current.Juz) == 0 {
			return fmt.Errorf("%w: surah %d ending on line %d is missing a name or juz list",
				ErrInvalidCatalog, current.Number, lineNo)
		}
		surahs = append(surahs, current)
		current = domain.Surah{}
		currentState = seeking
		return nil
	}

	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())

		if line == "" || strings.HasPrefix(line, comment) {
			continue
		}
		if line == separator {
			if err := finishEntry(); err != nil {
				return nil, err
			}
			continue
		}

		switch {
		case strings.HasPrefix(line, numberPrefix):
			if err := finishEntry(); err != nil { // a new number always starts a new entry
				return nil, err
			}
			n, err := strconv.Atoi(value(line, numberPrefix))
			if err != nil {
				return nil, fmt.Errorf("%w: line %d: bad surah number: %v", ErrInvalidCatalog, lineNo, err)
			}
			current.Number = n
			currentState = readingEntry
		case currentState == seeking:
			return nil, fmt.Errorf("%w: line %d: expected %q before %q", ErrInvalidCatalog, lineNo, numberPrefix, line)
		case strings.HasPrefix(line, namePrefix):
			current.Name = value(line, namePrefix)
		case strings.HasPrefix(line, juzPrefix):
			juz, err := parseJuzList(value(line, juzPrefix))
			if err != nil {
				return nil, fmt.Errorf("%w: line %d: %v", ErrInvalidCatalog, lineNo, err)
			}
			current.Juz = juz
		default:
			return nil, fmt.Errorf("%w: line %d: unrecognised line %q", ErrInvalidCatalog, lineNo, line)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if err := finishEntry(); err != nil { // the last entry may have no trailing separator
		return nil, err
	}

	return surahs, nil
}

func value(line, prefix string) string {
	return strings.TrimSpace(line[len(prefix):])
}

func parseJuzList(v string) ([]int, error) {
	var juz []int
	for _, part := range strings.Split(v, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		n, err := strconv.Atoi(part)
		if err != nil {
			return nil, fmt.Errorf("bad juz %q", part)
		}
		juz = append(juz, n)
	}
	return juz, nil
}
