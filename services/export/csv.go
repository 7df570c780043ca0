// Package export writes each run's accepted posts to a dated CSV file and
// reads such files back for ingestion.
package export

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"sjsage522/hotissueworker/internal/model"
	"sjsage522/hotissueworker/internal/normalizer"
)

const bom = "\xEF\xBB\xBF"

// Columns is the full header in file order
var Columns = []string{
	"Post ID", "Community", "Category", "Title", "Link", "Writer",
	"Date", "Views", "Recommend", "Content", "Images",
}

// FilePath returns {dataDir}/{YYYYMMDD}/{site}_{YYYYMMDD}.csv. Site names
// already carry the board ("fmkorea_humor").
func FilePath(dataDir, site string, day time.Time) string {
	stamp := day.Format("20060102")
	return filepath.Join(dataDir, stamp, fmt.Sprintf("%s_%s.csv", site, stamp))
}

// WriteFile writes posts to path, creating its directory
func WriteFile(path string, posts []model.RawPost) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := Write(f, posts); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// Write encodes posts as UTF-8 CSV with a BOM. Only columns holding a value
// in at least one post are written.
func Write(w io.Writer, posts []model.RawPost) error {
	if _, err := io.WriteString(w, bom); err != nil {
		return err
	}

	rows := make([][]string, len(posts))
	for i, p := range posts {
		rows[i] = values(p)
	}

	var present []int
	for col := range Columns {
		for _, row := range rows {
			if row[col] != "" {
				present = append(present, col)
				break
			}
		}
	}

	cw := csv.NewWriter(w)
	header := make([]string, len(present))
	for i, col := range present {
		header[i] = Columns[col]
	}
	if err := cw.Write(header); err != nil {
		return err
	}

	for _, row := range rows {
		record := make([]string, len(present))
		for i, col := range present {
			record[i] = row[col]
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func values(p model.RawPost) []string {
	images := ""
	if p.Images != nil {
		images = normalizer.EncodeImages(p.Images)
	}
	return []string{
		p.PostID, p.Community, p.Category, p.Title, p.Link, p.Writer,
		p.Date, p.Views, p.Recommend, p.Content, images,
	}
}

// ReadFile reads posts back from a file written by WriteFile
func ReadFile(path string) ([]model.RawPost, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Read(f)
}

// Read decodes a CSV by header name. Unknown columns are ignored and missing
// ones stay empty; Images is kept as the stored text.
func Read(r io.Reader) ([]model.RawPost, error) {
	br := bufio.NewReader(r)
	if head, err := br.Peek(len(bom)); err == nil && bytes.Equal(head, []byte(bom)) {
		_, _ = br.Discard(len(bom))
	}

	cr := csv.NewReader(br)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	index := make(map[string]int, len(header))
	for i, name := range header {
		index[name] = i
	}
	// older files used an underscore
	if _, ok := index["Post ID"]; !ok {
		if i, ok := index["Post_ID"]; ok {
			index["Post ID"] = i
		}
	}

	var posts []model.RawPost
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return posts, fmt.Errorf("read record %d: %w", len(posts)+1, err)
		}

		field := func(name string) string {
			if i, ok := index[name]; ok && i < len(record) {
				return record[i]
			}
			return ""
		}
		p := model.RawPost{
			PostID:    field("Post ID"),
			Community: field("Community"),
			Category:  field("Category"),
			Title:     field("Title"),
			Link:      field("Link"),
			Writer:    field("Writer"),
			Date:      field("Date"),
			Views:     field("Views"),
			Recommend: field("Recommend"),
			Content:   field("Content"),
		}
		if img := field("Images"); img != "" {
			p.Images = img
		}
		posts = append(posts, p)
	}
	return posts, nil
}
