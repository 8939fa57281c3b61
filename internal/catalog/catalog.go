package catalog

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"slices"

	"github.com/conorfennell/murajaah/internal/domain"
)

//go:embed data/surahs.txt
var defaultData []byte

// ErrInvalidCatalog wraps every problem found while parsing or validating a catalog.
var ErrInvalidCatalog = errors.New("invalid surah catalog")

// Catalog is the read-only Surah reference table.
type Catalog struct {
	surahs []domain.Surah
	byNum  map[int]domain.Surah
	byJuz  map[int][]domain.Surah
}

// New builds a catalog from surahs, checking numbers are unique and that
// every number and Juz is in range.
func New(surahs []domain.Surah) (*Catalog, error) {
	c := &Catalog{
		byNum: make(map[int]domain.Surah, len(surahs)),
		byJuz: make(map[int][]domain.Surah),
	}
	for _, s := range surahs {
		if s.Number < 1 || s.Number > domain.SurahCount {
			return nil, fmt.Errorf("%w: surah number %d out of range", ErrInvalidCatalog, s.Number)
		}
		if _, dup := c.byNum[s.Number]; dup {
			return nil, fmt.Errorf("%w: surah %d listed twice", ErrInvalidCatalog, s.Number)
		}
		for _, j := range s.Juz {
			if j < 1 || j > domain.JuzCount {
				return nil, fmt.Errorf("%w: surah %d lists juz %d", ErrInvalidCatalog, s.Number, j)
			}
		}
		s.Juz = slices.Clone(s.Juz)
		c.byNum[s.Number] = s
		c.surahs = append(c.surahs, s)
	}

	slices.SortFunc(c.surahs, func(a, b domain.Surah) int { return a.Number - b.Number })
	for _, s := range c.surahs {
		for _, j := range s.Juz {
			c.byJuz[j] = append(c.byJuz[j], s)
		}
	}
	return c, nil
}

// Default returns the catalog embedded in the binary.
func Default() *Catalog {
	surahs, err := Parse(bytes.NewReader(defaultData))
	if err != nil {
		panic(fmt.Sprintf("embedded surah catalog: %v", err))
	}
	c, err := New(surahs)
	if err != nil {
		panic(fmt.Sprintf("embedded surah catalog: %v", err))
	}
	return c
}

// checkComplete requires all 114 Surahs and at least one Surah per Juz.
func (c *Catalog) checkComplete() error {
	if len(c.surahs) != domain.SurahCount {
		return fmt.Errorf("%w: expected %d surahs, found %d", ErrInvalidCatalog, domain.SurahCount, len(c.surahs))
	}
	for j := 1; j <= domain.JuzCount; j++ {
		if len(c.byJuz[j]) == 0 {
			return fmt.Errorf("%w: juz %d has no surahs", ErrInvalidCatalog, j)
		}
	}
	return nil
}

// Surah looks a Surah up by number.
func (c *Catalog) Surah(n int) (domain.Surah, bool) {
	s, ok := c.byNum[n]
	return s, ok
}

// All returns every Surah in ascending order.
func (c *Catalog) All() []domain.Surah {
	return slices.Clone(c.surahs)
}

// InJuz returns the Surahs with verses in juz, in ascending order.
func (c *Catalog) InJuz(juz int) []domain.Surah {
	return slices.Clone(c.byJuz[juz])
}

// InAnyJuz returns the Surahs with verses in at least one of the given Juz.
func (c *Catalog) InAnyJuz(juz []int) []domain.Surah {
	var out []domain.Surah
	for _, s := range c.surahs {
		for _, j := range juz {
			if s.InJuz(j) {
				out = append(out, s)
				break
			}
		}
	}
	return out
}
