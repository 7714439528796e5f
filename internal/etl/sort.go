package etl

import (
	"container/heap"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Sorter orders an NDJSON artifact by ascending uuid (bytewise comparison),
// preserving duplicates. The strategy is picked while reading: lines buffer in
// memory up to MemoryLines; an input that fits is sorted in place, anything
// larger degrades to sorted chunk files merged with a heap. Malformed lines
// are counted, logged, and dropped.
type Sorter struct {
	MemoryLines int
	ChunkLines  int
	TempDir     string
}

// SortResult reports sorted and dropped line counts.
type SortResult struct {
	Sorted  int64
	Skipped int64
}

type sortLine struct {
	key  string
	line []byte
}

// Sort reads inPath and writes the uuid-ordered artifact to outPath.
func (s *Sorter) Sort(ctx context.Context, inPath, outPath string) (*SortResult, error) {
	log := zap.L().With(zap.String("component", "etl.sort"), zap.String("input", filepath.Base(inPath)))

	memoryLines := s.MemoryLines
	if memoryLines <= 0 {
		memoryLines = 2_000_000
	}
	chunkLines := s.ChunkLines
	if chunkLines <= 0 || chunkLines > memoryLines {
		chunkLines = memoryLines
	}

	in, err := NewLineReader(inPath)
	if err != nil {
		return nil, err
	}
	defer in.Close() //nolint:errcheck

	result := &SortResult{}
	buffer := make([]sortLine, 0, 1024)

	// Fill the in-memory buffer up to the ceiling.
	exhausted, err := s.fill(in, &buffer, memoryLines, result, log)
	if err != nil {
		return nil, err
	}

	if exhausted {
		sortBuffer(buffer)
		if err := writeSorted(outPath, buffer); err != nil {
			return nil, err
		}
		result.Sorted = int64(len(buffer))
		log.Info("in-memory sort complete",
			zap.Int64("sorted", result.Sorted),
			zap.Int64("skipped", result.Skipped),
		)
		return result, nil
	}

	// Ceiling exceeded: external chunk-and-merge.
	n, err := s.externalSort(ctx, in, buffer, chunkLines, outPath, result, log)
	if err != nil {
		return nil, err
	}
	result.Sorted = n
	log.Info("external sort complete",
		zap.Int64("sorted", result.Sorted),
		zap.Int64("skipped", result.Skipped),
	)
	return result, nil
}

// fill buffers up to limit lines. Returns true when the input is exhausted.
func (s *Sorter) fill(in *LineReader, buffer *[]sortLine, limit int, result *SortResult, log *zap.Logger) (bool, error) {
	for len(*buffer) < limit {
		line, err := in.Next()
		if err == io.EOF {
			return true, nil
		}
		if err != nil {
			return false, err
		}
		key, err := lineKey(line)
		if err != nil {
			result.Skipped++
			log.Warn("dropping malformed line", zap.Error(err))
			continue
		}
		// The reader reuses its buffer between lines.
		copied := make([]byte, len(line))
		copy(copied, line)
		*buffer = append(*buffer, sortLine{key: key, line: copied})
	}
	return false, nil
}

func sortBuffer(buffer []sortLine) {
	sort.SliceStable(buffer, func(i, j int) bool {
		return buffer[i].key < buffer[j].key
	})
}

func writeSorted(path string, buffer []sortLine) error {
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "sort: create %s", path)
	}
	for _, sl := range buffer {
		if _, err := f.Write(append(sl.line, '\n')); err != nil {
			_ = f.Close()
			return eris.Wrap(err, "sort: write output")
		}
	}
	if err := f.Close(); err != nil {
		return eris.Wrap(err, "sort: close output")
	}
	return nil
}

// externalSort spills sorted chunks to disk and k-way merges them.
func (s *Sorter) externalSort(ctx context.Context, in *LineReader, buffered []sortLine, chunkLines int, outPath string, result *SortResult, log *zap.Logger) (int64, error) {
	tempDir := s.TempDir
	if tempDir == "" {
		tempDir = filepath.Dir(outPath)
	}
	chunkDir, err := os.MkdirTemp(tempDir, "sort-chunks-")
	if err != nil {
		return 0, eris.Wrap(err, "sort: create chunk dir")
	}
	defer os.RemoveAll(chunkDir) //nolint:errcheck

	var chunkPaths []string
	writeChunk := func(lines []sortLine) error {
		sortBuffer(lines)
		path := filepath.Join(chunkDir, fmt.Sprintf("chunk-%05d.ndjson", len(chunkPaths)))
		if err := writeSorted(path, lines); err != nil {
			return err
		}
		chunkPaths = append(chunkPaths, path)
		return nil
	}

	// Spill what the in-memory attempt already buffered, then keep chunking.
	for start := 0; start < len(buffered); start += chunkLines {
		end := min(start+chunkLines, len(buffered))
		if err := writeChunk(buffered[start:end]); err != nil {
			return 0, err
		}
	}
	buffered = nil

	for {
		if ctx.Err() != nil {
			return 0, eris.Wrap(ctx.Err(), "sort: cancelled")
		}
		chunk := make([]sortLine, 0, chunkLines)
		exhausted, err := s.fill(in, &chunk, chunkLines, result, log)
		if err != nil {
			return 0, err
		}
		if len(chunk) > 0 {
			if err := writeChunk(chunk); err != nil {
				return 0, err
			}
		}
		if exhausted {
			break
		}
	}

	log.Info("merging sorted chunks", zap.Int("chunks", len(chunkPaths)))
	return mergeChunks(chunkPaths, outPath)
}

// mergeItem is one cursor in the k-way merge.
type mergeItem struct {
	key    string
	line   []byte
	source int
}

type mergeHeap []mergeItem

func (h mergeHeap) Len() int            { return len(h) }
func (h mergeHeap) Less(i, j int) bool  { return h[i].key < h[j].key }
func (h mergeHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *mergeHeap) Push(x any)         { *h = append(*h, x.(mergeItem)) }
func (h *mergeHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

func mergeChunks(chunkPaths []string, outPath string) (int64, error) {
	readers := make([]*LineReader, len(chunkPaths))
	for i, path := range chunkPaths {
		r, err := NewLineReader(path)
		if err != nil {
			closeReaders(readers[:i])
			return 0, err
		}
		readers[i] = r
	}
	defer closeReaders(readers)

	out, err := os.Create(outPath)
	if err != nil {
		return 0, eris.Wrapf(err, "sort: create %s", outPath)
	}

	h := make(mergeHeap, 0, len(readers))
	advance := func(source int) error {
		line, err := readers[source].Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		// Chunk files are our own output; keys always parse.
		key, err := lineKey(line)
		if err != nil {
			return err
		}
		copied := make([]byte, len(line))
		copy(copied, line)
		heap.Push(&h, mergeItem{key: key, line: copied, source: source})
		return nil
	}

	for i := range readers {
		if err := advance(i); err != nil {
			_ = out.Close()
			return 0, err
		}
	}
	heap.Init(&h)

	var written int64
	for h.Len() > 0 {
		item := heap.Pop(&h).(mergeItem)
		if _, err := out.Write(append(item.line, '\n')); err != nil {
			_ = out.Close()
			return 0, eris.Wrap(err, "sort: write merged output")
		}
		written++
		if err := advance(item.source); err != nil {
			_ = out.Close()
			return 0, err
		}
	}

	if err := out.Close(); err != nil {
		return 0, eris.Wrap(err, "sort: close output")
	}
	return written, nil
}

func closeReaders(readers []*LineReader) {
	for _, r := range readers {
		if r != nil {
			_ = r.Close()
		}
	}
}

// SortCards sorts the filter artifact by uuid.
type SortCards struct{}

func (s *SortCards) Name() string { return "sort-cards" }

func (s *SortCards) Run(ctx context.Context, env *Env) (*StageResult, error) {
	return runSortStage(ctx, env, env.path(artifactCards), env.path(artifactCardsSorted))
}

// SortSnapshots sorts the extractor artifact by uuid.
type SortSnapshots struct{}

func (s *SortSnapshots) Name() string { return "sort-prices" }

func (s *SortSnapshots) Run(ctx context.Context, env *Env) (*StageResult, error) {
	return runSortStage(ctx, env, env.path(artifactSnapshots), env.path(artifactSnapshotsSorted))
}

func runSortStage(ctx context.Context, env *Env, inPath, outPath string) (*StageResult, error) {
	sorter := &Sorter{
		MemoryLines: env.Cfg.Pipeline.SortMemoryLines,
		ChunkLines:  env.Cfg.Pipeline.SortChunkLines,
		TempDir:     env.WorkDir,
	}
	res, err := sorter.Sort(ctx, inPath, outPath)
	if err != nil {
		return nil, err
	}
	return &StageResult{Rows: res.Sorted, Skipped: res.Skipped}, nil
}
