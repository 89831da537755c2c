package internal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"
)

// FileScoreStore 以單一 JSON 檔案儲存成績
//
// 檔案格式：
//
//	{"daily": [{"name": "Al", "score": 500, "timestamp": "2024-05-01T10:00:00"}], "weekly": [...]}
//
// 每次寫入都先寫暫存檔再 rename，避免程序中斷時留下半個檔案。
type FileScoreStore struct {
	path string
	mu   sync.Mutex
}

// fileEntry 檔案中的成績格式
type fileEntry struct {
	Name      string `json:"name"`
	Score     int    `json:"score"`
	Timestamp string `json:"timestamp"`
}

type fileDocument struct {
	Daily  []fileEntry `json:"daily"`
	Weekly []fileEntry `json:"weekly"`
}

// 舊檔案可能沒有時區資訊，以本地時間解析
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
}

// NewFileScoreStore 創建檔案儲存
func NewFileScoreStore(path string) *FileScoreStore {
	return &FileScoreStore{path: path}
}

// Append 加入成績
func (s *FileScoreStore) Append(ctx context.Context, entry ScoreEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.read()
	if err != nil {
		return err
	}

	fe := toFileEntry(entry)
	doc.Daily = append(doc.Daily, fe)
	doc.Weekly = append(doc.Weekly, fe)

	return s.write(doc)
}

// Load 讀取成績，檔案不存在時返回空集合
func (s *FileScoreStore) Load(ctx context.Context) (ScoreCollections, error) {
	if err := ctx.Err(); err != nil {
		return ScoreCollections{}, err
	}

	s.mu.Lock()
	doc, err := s.read()
	s.mu.Unlock()
	if err != nil {
		return ScoreCollections{}, err
	}

	daily, err := fromFileEntries(doc.Daily)
	if err != nil {
		return ScoreCollections{}, err
	}
	weekly, err := fromFileEntries(doc.Weekly)
	if err != nil {
		return ScoreCollections{}, err
	}

	return ScoreCollections{Daily: daily, Weekly: weekly}, nil
}

// Prune 刪除過期成績
func (s *FileScoreStore) Prune(ctx context.Context, dailyCutoff, weeklyCutoff time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.read()
	if err != nil {
		return err
	}

	before := len(doc.Daily) + len(doc.Weekly)
	doc.Daily = pruneFileEntries(doc.Daily, dailyCutoff)
	doc.Weekly = pruneFileEntries(doc.Weekly, weeklyCutoff)
	if len(doc.Daily)+len(doc.Weekly) == before {
		return nil
	}

	return s.write(doc)
}

// Close 檔案儲存沒有需要釋放的資源
func (s *FileScoreStore) Close() error {
	return nil
}

func (s *FileScoreStore) read() (fileDocument, error) {
	var doc fileDocument

	// #nosec G304 - path 來自配置
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return doc, nil
	}
	if err != nil {
		return doc, fmt.Errorf("read scores file: %w", err)
	}
	if len(data) == 0 {
		return doc, nil
	}

	if err := json.Unmarshal(data, &doc); err != nil {
		return doc, fmt.Errorf("parse scores file: %w", err)
	}
	return doc, nil
}

func (s *FileScoreStore) write(doc fileDocument) error {
	if doc.Daily == nil {
		doc.Daily = []fileEntry{}
	}
	if doc.Weekly == nil {
		doc.Weekly = []fileEntry{}
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode scores: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".scores-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace scores file: %w", err)
	}
	return nil
}

func toFileEntry(e ScoreEntry) fileEntry {
	return fileEntry{
		Name:      e.Name,
		Score:     e.Score,
		Timestamp: e.Timestamp.Format(time.RFC3339Nano),
	}
}

func fromFileEntries(entries []fileEntry) ([]ScoreEntry, error) {
	out := make([]ScoreEntry, 0, len(entries))
	for _, fe := range entries {
		ts, err := parseTimestamp(fe.Timestamp)
		if err != nil {
			return nil, err
		}
		out = append(out, ScoreEntry{Name: fe.Name, Score: fe.Score, Timestamp: ts})
	}
	return out, nil
}

func pruneFileEntries(entries []fileEntry, cutoff time.Time) []fileEntry {
	return slices.DeleteFunc(entries, func(fe fileEntry) bool {
		ts, err := parseTimestamp(fe.Timestamp)
		// 無法解析的時間一併清除
		return err != nil || !ts.After(cutoff)
	})
}

func parseTimestamp(value string) (time.Time, error) {
	for _, layout := range timestampLayouts {
		if ts, err := time.ParseInLocation(layout, value, time.Local); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid timestamp %q", value)
}
