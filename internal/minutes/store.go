// Package minutes resolves committee meeting dates to the text of the
// meeting's minutes. Minutes live in PDFs linked from a meeting-history
// JSON feed; extracted text is cached on disk so each PDF is fetched at
// most once across runs.
package minutes

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ledongthuc/pdf"
	"github.com/rs/zerolog"
)

// Getter fetches a URL and returns the response body.
type Getter interface {
	Get(ctx context.Context, rawURL string) ([]byte, error)
}

var (
	dotnetDatePattern = regexp.MustCompile(`/Date\((-?\d+)`)
	gatewayPDFPattern = regexp.MustCompile(`window\.open\('([^']*[Mm]inutes[^']*\.pdf)'`)
)

type meeting struct {
	date          time.Time
	minutesPath   string
	autoroutePath string
}

type meetingRecord struct {
	DateAndTime     string `json:"DateAndTime"`
	MinutesFilePath string `json:"MinutesFilePath"`
	AutoroutePath   string `json:"AutoroutePath"`
}

// Store loads the meeting index lazily on first use and caches extracted
// minutes text under cacheDir as <date>.txt files.
type Store struct {
	client   Getter
	indexURL string
	baseURL  string
	cacheDir string
	log      zerolog.Logger

	mu     sync.Mutex
	loaded bool
	byDate map[string]meeting
}

func NewStore(client Getter, indexURL, baseURL, cacheDir string, log zerolog.Logger) *Store {
	return &Store{
		client:   client,
		indexURL: indexURL,
		baseURL:  baseURL,
		cacheDir: cacheDir,
		log:      log,
		byDate:   make(map[string]meeting),
	}
}

// MinutesText returns the extracted minutes text for a meeting date. The
// lookup tolerates a one-day offset either way, since multi-day meetings
// are indexed under their first day. Every failure path returns ok=false;
// minutes are an enrichment, never a reason to fail a sync.
func (s *Store) MinutesText(ctx context.Context, meetingDate time.Time) (string, bool) {
	if cached, ok := s.readCache(meetingDate); ok {
		return cached, true
	}

	s.loadIndex(ctx)

	record, ok := s.findMeeting(meetingDate)
	if !ok {
		s.log.Debug().Str("date", dateKey(meetingDate)).Msg("no committee meeting on date")
		return "", false
	}

	pdfURL := s.resolvePDFURL(ctx, record)
	if pdfURL == "" {
		s.log.Debug().Str("date", dateKey(meetingDate)).Msg("no minutes pdf for meeting")
		return "", false
	}

	s.log.Info().Str("date", dateKey(meetingDate)).Str("url", pdfURL).Msg("downloading minutes pdf")
	body, err := s.client.Get(ctx, pdfURL)
	if err != nil {
		s.log.Warn().Err(err).Str("url", pdfURL).Msg("minutes pdf fetch failed")
		return "", false
	}

	text, err := extractPDFText(body)
	if err != nil || strings.TrimSpace(text) == "" {
		s.log.Warn().Err(err).Str("date", dateKey(meetingDate)).Msg("no extractable text in minutes pdf")
		return "", false
	}

	s.writeCache(meetingDate, text)
	return text, true
}

func (s *Store) loadIndex(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loaded {
		return
	}
	s.loaded = true

	body, err := s.client.Get(ctx, s.indexURL)
	if err != nil {
		s.log.Warn().Err(err).Msg("meeting index fetch failed")
		return
	}

	var records []meetingRecord
	if err := json.Unmarshal(body, &records); err != nil {
		s.log.Warn().Err(err).Msg("meeting index is not valid json")
		return
	}

	for _, r := range records {
		date, ok := parseDotnetDate(r.DateAndTime)
		if !ok {
			continue
		}
		s.byDate[dateKey(date)] = meeting{
			date:          date,
			minutesPath:   r.MinutesFilePath,
			autoroutePath: r.AutoroutePath,
		}
	}
	s.log.Info().Int("meetings", len(s.byDate)).Msg("loaded committee meeting index")
}

func (s *Store) findMeeting(target time.Time) (meeting, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, days := range []int{0, 1, -1} {
		if m, ok := s.byDate[dateKey(target.AddDate(0, 0, days))]; ok {
			return m, true
		}
	}
	return meeting{}, false
}

func (s *Store) resolvePDFURL(ctx context.Context, record meeting) string {
	if record.minutesPath != "" {
		return s.absoluteURL(record.minutesPath)
	}
	if record.autoroutePath == "" {
		return ""
	}

	// Some older meetings expose the PDF only behind a gateway page that
	// opens it from an onclick handler.
	body, err := s.client.Get(ctx, s.absoluteURL(record.autoroutePath))
	if err != nil {
		s.log.Warn().Err(err).Msg("gateway page fetch failed")
		return ""
	}
	match := gatewayPDFPattern.FindSubmatch(body)
	if match == nil {
		return ""
	}
	return s.absoluteURL(string(match[1]))
}

func (s *Store) absoluteURL(path string) string {
	if strings.HasPrefix(path, "http") {
		return path
	}
	return s.baseURL + path
}

func (s *Store) readCache(meetingDate time.Time) (string, bool) {
	data, err := os.ReadFile(s.cachePath(meetingDate))
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			s.log.Warn().Err(err).Msg("minutes cache read failed")
		}
		return "", false
	}
	return string(data), true
}

func (s *Store) writeCache(meetingDate time.Time, text string) {
	if err := os.MkdirAll(s.cacheDir, 0o755); err != nil {
		s.log.Warn().Err(err).Msg("minutes cache dir create failed")
		return
	}
	if err := os.WriteFile(s.cachePath(meetingDate), []byte(text), 0o644); err != nil {
		s.log.Warn().Err(err).Msg("minutes cache write failed")
	}
}

func (s *Store) cachePath(meetingDate time.Time) string {
	return filepath.Join(s.cacheDir, dateKey(meetingDate)+".txt")
}

func dateKey(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// parseDotnetDate handles the /Date(milliseconds)/ encoding the meeting
// feed uses for timestamps.
func parseDotnetDate(raw string) (time.Time, bool) {
	match := dotnetDatePattern.FindStringSubmatch(raw)
	if match == nil {
		return time.Time{}, false
	}
	ms, err := strconv.ParseInt(match[1], 10, 64)
	if err != nil {
		return time.Time{}, false
	}
	t := time.Unix(ms/1000, 0).UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), true
}

func extractPDFText(data []byte) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", err
	}

	var pages []string
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		if strings.TrimSpace(text) != "" {
			pages = append(pages, text)
		}
	}
	return strings.Join(pages, "\n\n"), nil
}
