// Package corpus loads and serves the scripture corpus: verse CSV files
// (one per translation) and a commentary CSV. Files are parsed once per
// process and memoized; all lookups after the first load are in-memory.
// It also provides the lexical substring search used as a fallback when no
// embedding collection exists yet.
package corpus

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"
)

// ErrNotFound is returned when a reference lookup does not match any record.
// Callers treat it as a normal zero-result outcome, not a failure.
var ErrNotFound = errors.New("corpus: record not found")

// ErrLoad is returned when a corpus source file is missing or unreadable.
// Malformed individual rows are dropped silently; only total absence of the
// source escalates.
var ErrLoad = errors.New("corpus: load failed")

// Record is a single verse of the corpus. Immutable reference data.
type Record struct {
	// Translation is the corpus collection this record belongs to (e.g. "BSB").
	Translation string
	// Book is the book name (e.g. "Genesis").
	Book string
	// Chapter is the 1-based chapter number.
	Chapter int
	// Verse is the 1-based verse number.
	Verse int
	// Text is the verse text.
	Text string
	// Reference is the canonical "Book Chapter:Verse" string.
	Reference string
}

// ID returns a stable identifier unique within a translation, used as the
// vector store point ID so rebuilds upsert rather than duplicate.
func (r Record) ID() string {
	return fmt.Sprintf("%s_%s_%d_%d", r.Translation, r.Book, r.Chapter, r.Verse)
}

// CommentaryRecord is a single commentary entry.
type CommentaryRecord struct {
	// ID is the source row identifier.
	ID string
	// Book is the book the commentary covers, when known.
	Book string
	// FatherName is the commentary author, when known.
	FatherName string
	// SourceTitle is the work the entry is taken from, when known.
	SourceTitle string
	// Text is the commentary text.
	Text string
}

// Store loads and memoizes corpus data from a directory of CSV files.
// Verse files are named <TRANSLATION>.csv with columns Book,Chapter,Verse,Text;
// the commentary file is data-commentaries.csv with a txt column.
// Store is safe for concurrent use; only the first load per translation
// touches the filesystem.
type Store struct {
	// dataDir is the directory containing the corpus CSV files.
	dataDir string

	mu         sync.Mutex
	verses     map[string][]Record
	commentary []CommentaryRecord
	commLoaded bool
}

// NewStore constructs a Store rooted at dataDir. No I/O happens until the
// first Load call.
func NewStore(dataDir string) *Store {
	return &Store{
		dataDir: dataDir,
		verses:  make(map[string][]Record),
	}
}

// Load parses the verse CSV for the given translation, memoizing the result.
// Rows missing any of Book, Chapter, Verse, or Text are dropped, not fatal.
// A missing or unreadable file returns an error wrapping ErrLoad.
func (s *Store) Load(ctx context.Context, translation string) ([]Record, error) {
	translation = strings.ToUpper(strings.TrimSpace(translation))

	s.mu.Lock()
	defer s.mu.Unlock()

	if recs, ok := s.verses[translation]; ok {
		return recs, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("corpus: load %s: %w", translation, err)
	}

	path := filepath.Join(s.dataDir, translation+".csv")
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", ErrLoad, path, err)
	}
	defer f.Close()

	recs, err := parseVerses(f, translation)
	if err != nil {
		return nil, fmt.Errorf("%w: parse %s: %v", ErrLoad, path, err)
	}

	s.verses[translation] = recs
	return recs, nil
}

// Commentary parses and memoizes the commentary CSV. A missing file returns
// an error wrapping ErrLoad; callers in the retrieval path treat that as
// "no commentary available" and continue.
func (s *Store) Commentary(ctx context.Context) ([]CommentaryRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.commLoaded {
		return s.commentary, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("corpus: load commentary: %w", err)
	}

	path := filepath.Join(s.dataDir, "data-commentaries.csv")
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", ErrLoad, path, err)
	}
	defer f.Close()

	recs, err := parseCommentary(f)
	if err != nil {
		return nil, fmt.Errorf("%w: parse %s: %v", ErrLoad, path, err)
	}

	s.commentary = recs
	s.commLoaded = true
	return recs, nil
}

// referencePattern matches "Book Chapter:Verse". Book names may contain
// spaces and leading digits ("1 John 4:8").
var referencePattern = regexp.MustCompile(`^(.+?)\s+(\d+):(\d+)$`)

// ParseReference splits a "Book Chapter:Verse" reference into its parts.
// Returns ok=false when the string does not match the reference grammar.
func ParseReference(reference string) (book string, chapter, verse int, ok bool) {
	m := referencePattern.FindStringSubmatch(strings.TrimSpace(reference))
	if m == nil {
		return "", 0, 0, false
	}
	chapter, err := strconv.Atoi(m[2])
	if err != nil {
		return "", 0, 0, false
	}
	verse, err = strconv.Atoi(m[3])
	if err != nil {
		return "", 0, 0, false
	}
	return strings.TrimSpace(m[1]), chapter, verse, true
}

// Lookup returns the record for a "Book Chapter:Verse" reference.
// Book comparison is case-insensitive. Returns ErrNotFound on a parse
// failure or a miss.
func (s *Store) Lookup(ctx context.Context, reference, translation string) (Record, error) {
	book, chapter, verse, ok := ParseReference(reference)
	if !ok {
		return Record{}, fmt.Errorf("%w: %q is not a valid reference", ErrNotFound, reference)
	}

	recs, err := s.Load(ctx, translation)
	if err != nil {
		return Record{}, err
	}

	for _, r := range recs {
		if r.Chapter == chapter && r.Verse == verse && strings.EqualFold(r.Book, book) {
			return r, nil
		}
	}
	return Record{}, fmt.Errorf("%w: %s (%s)", ErrNotFound, reference, translation)
}

// Chapter returns all verses of a chapter in verse order, used to assemble
// the surrounding context for a reference lookup.
func (s *Store) Chapter(ctx context.Context, book string, chapter int, translation string) ([]Record, error) {
	recs, err := s.Load(ctx, translation)
	if err != nil {
		return nil, err
	}

	var out []Record
	for _, r := range recs {
		if r.Chapter == chapter && strings.EqualFold(r.Book, book) {
			out = append(out, r)
		}
	}
	return out, nil
}

// SearchText performs a case-insensitive substring match over verse text,
// returning up to limit records in source order. This is the lexical
// fallback used when no embedding collection exists.
func (s *Store) SearchText(ctx context.Context, query, translation string, limit int) ([]Record, error) {
	recs, err := s.Load(ctx, translation)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 10
	}

	needle := strings.ToLower(query)
	var out []Record
	for _, r := range recs {
		if strings.Contains(strings.ToLower(r.Text), needle) {
			out = append(out, r)
			if len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

// Books returns the distinct book names of a translation, in first-seen order.
func (s *Store) Books(ctx context.Context, translation string) ([]string, error) {
	recs, err := s.Load(ctx, translation)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var books []string
	for _, r := range recs {
		if !seen[r.Book] {
			seen[r.Book] = true
			books = append(books, r.Book)
		}
	}
	return books, nil
}

// parseVerses reads a verse CSV, dropping malformed rows. The header row
// determines column positions so column order in source files is free.
func parseVerses(r io.Reader, translation string) ([]Record, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1 // ragged rows are dropped below, not fatal

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}
	cols := columnIndex(header)
	iBook, iChapter, iVerse, iText := cols["book"], cols["chapter"], cols["verse"], cols["text"]
	if iBook < 0 || iChapter < 0 || iVerse < 0 || iText < 0 {
		return nil, fmt.Errorf("missing required columns in header %v", header)
	}

	var recs []Record
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			// A syntactically broken row is dropped, matching the "malformed
			// rows are dropped, not fatal" contract.
			continue
		}
		if len(row) <= iBook || len(row) <= iChapter || len(row) <= iVerse || len(row) <= iText {
			continue
		}

		book := strings.TrimSpace(row[iBook])
		text := strings.TrimSpace(row[iText])
		chapter, errC := strconv.Atoi(strings.TrimSpace(row[iChapter]))
		verse, errV := strconv.Atoi(strings.TrimSpace(row[iVerse]))
		if book == "" || text == "" || errC != nil || errV != nil {
			continue
		}

		recs = append(recs, Record{
			Translation: translation,
			Book:        book,
			Chapter:     chapter,
			Verse:       verse,
			Text:        text,
			Reference:   fmt.Sprintf("%s %d:%d", book, chapter, verse),
		})
	}
	return recs, nil
}

// parseCommentary reads the commentary CSV. Rows with an empty txt column
// are dropped.
func parseCommentary(r io.Reader) ([]CommentaryRecord, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}
	cols := columnIndex(header)
	iTxt := cols["txt"]
	if iTxt < 0 {
		return nil, fmt.Errorf("missing txt column in header %v", header)
	}

	var recs []CommentaryRecord
	row := 0
	for {
		fields, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		row++
		if err != nil || len(fields) <= iTxt {
			continue
		}

		text := strings.TrimSpace(fields[iTxt])
		if text == "" {
			continue
		}

		rec := CommentaryRecord{
			ID:   strconv.Itoa(row),
			Text: text,
		}
		if i := cols["id"]; i >= 0 && i < len(fields) && fields[i] != "" {
			rec.ID = fields[i]
		}
		if i := cols["book"]; i >= 0 && i < len(fields) {
			rec.Book = strings.TrimSpace(fields[i])
		}
		if i := cols["father_name"]; i >= 0 && i < len(fields) {
			rec.FatherName = strings.TrimSpace(fields[i])
		}
		if i := cols["source_title"]; i >= 0 && i < len(fields) {
			rec.SourceTitle = strings.TrimSpace(fields[i])
		}
		recs = append(recs, rec)
	}
	return recs, nil
}

// columnIndex maps lowercased header names to positions; absent names map
// to -1 via the accessor pattern used above.
func columnIndex(header []string) map[string]int {
	idx := map[string]int{
		"book": -1, "chapter": -1, "verse": -1, "text": -1,
		"txt": -1, "id": -1, "father_name": -1, "source_title": -1,
	}
	for i, h := range header {
		idx[strings.ToLower(strings.TrimSpace(h))] = i
	}
	return idx
}
