package csvchunk

import (
	"fmt"
	"math"
)

// Chunk is a contiguous window of rows [Start, End).
type Chunk struct {
	Index int
	Start int
	End   int
	Rows  [][]string
}

func (c Chunk) Len() int { return c.End - c.Start }

// Sizing derives chunk dimensions from an estimated token budget.
type Sizing struct {
	TokenBudget  int
	TokensPerRow int
	OverlapRatio float64
}

func DefaultSizing() Sizing {
	return Sizing{TokenBudget: 800000, TokensPerRow: 55, OverlapRatio: 0.1}
}

// RowsPerChunk is floor(TokenBudget / TokensPerRow).
func (s Sizing) RowsPerChunk() int {
	if s.TokensPerRow <= 0 {
		return 0
	}
	return s.TokenBudget / s.TokensPerRow
}

// OverlapRows is floor(RowsPerChunk * OverlapRatio).
func (s Sizing) OverlapRows() int {
	return int(math.Floor(float64(s.RowsPerChunk()) * s.OverlapRatio))
}

// Split cuts rows using the sizing's dimensions.
func (s Sizing) Split(rows [][]string) ([]Chunk, error) {
	return Split(rows, s.RowsPerChunk(), s.OverlapRows())
}

// Split cuts rows into windows of at most size rows. Each window after the
// first starts overlap rows before the previous one ends; the last window
// ends at the last row.
func Split(rows [][]string, size, overlap int) ([]Chunk, error) {
	if len(rows) == 0 {
		return nil, ErrEmptyCSV
	}
	if size <= 0 || overlap < 0 || overlap >= size {
		return nil, fmt.Errorf("%w: size=%d overlap=%d", ErrInvalidSizing, size, overlap)
	}

	chunks := make([]Chunk, 0, ChunkCount(len(rows), size, overlap))
	start := 0
	for {
		end := min(start+size, len(rows))
		chunks = append(chunks, Chunk{
			Index: len(chunks),
			Start: start,
			End:   end,
			Rows:  rows[start:end],
		})
		if end == len(rows) {
			return chunks, nil
		}
		start = end - overlap
	}
}

// ChunkCount is ceil((rows-overlap)/(size-overlap)) when rows > size, else 1.
func ChunkCount(rows, size, overlap int) int {
	if rows <= 0 || size <= 0 || overlap >= size {
		return 0
	}
	if rows <= size {
		return 1
	}
	step := size - overlap
	return (rows - overlap + step - 1) / step
}
