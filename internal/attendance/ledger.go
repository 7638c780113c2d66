package attendance

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/renameio"
)

// Layouts of the Date and Time columns.
const (
	DateLayout = "2006-01-02"
	TimeLayout = "15:04:05"
)

var header = []string{"Name", "Date", "Time"}

var (
	ErrEmptyName = errors.New("name required")
	ErrStorage   = errors.New("ledger storage error")
)

// Record is one attendance row. A name appears at most once per Date.
type Record struct {
	Name string `json:"name"`
	Date string `json:"date"`
	Time string `json:"time"`
}

// MarkResult tells whether Mark added a row.
type MarkResult int

const (
	Marked MarkResult = iota + 1
	AlreadyMarked
)

func (r MarkResult) String() string {
	switch r {
	case Marked:
		return "marked"
	case AlreadyMarked:
		return "already_marked"
	default:
		return "invalid"
	}
}

// Locker serializes ledger writers across processes.
type Locker interface {
	Lock(ctx context.Context) (unlock func(), err error)
}

// Ledger is the CSV attendance file. Every mutation rewrites the whole file
// atomically, so a fresh read always reflects the last successful Mark.
type Ledger struct {
	path   string
	loc    *time.Location
	locker Locker
	mu     sync.Mutex
}

// LedgerOption configures a Ledger.
type LedgerOption func(*Ledger)

// WithLocation sets the zone used to derive Date and Time. Defaults to time.Local.
func WithLocation(loc *time.Location) LedgerOption {
	return func(l *Ledger) {
		if loc != nil {
			l.loc = loc
		}
	}
}

// WithLocker adds a cross-process writer lock around Mark.
func WithLocker(locker Locker) LedgerOption {
	return func(l *Ledger) { l.locker = locker }
}

// OpenLedger opens the ledger at path, creating a header-only file when missing.
func OpenLedger(path string, opts ...LedgerOption) (*Ledger, error) {
	l := &Ledger{path: path, loc: time.Local}
	for _, opt := range opts {
		opt(l)
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("%w: create %s: %w", ErrStorage, dir, err)
		}
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		if err := l.write(nil); err != nil {
			return nil, err
		}
	} else if err != nil {
		return nil, fmt.Errorf("%w: stat %s: %w", ErrStorage, path, err)
	}

	if _, err := l.read(); err != nil {
		return nil, err
	}
	return l, nil
}

// Path returns the ledger file path.
func (l *Ledger) Path() string { return l.path }

// Mark records name as present on the calendar day of now. A second call on
// the same day leaves the ledger untouched and returns the first record.
func (l *Ledger) Mark(ctx context.Context, name string, now time.Time) (MarkResult, Record, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return 0, Record{}, ErrEmptyName
	}
	local := now.In(l.loc)
	rec := Record{
		Name: name,
		Date: local.Format(DateLayout),
		Time: local.Format(TimeLayout),
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.locker != nil {
		unlock, err := l.locker.Lock(ctx)
		if err != nil {
			return 0, Record{}, fmt.Errorf("acquire ledger lock: %w", err)
		}
		defer unlock()
	}

	records, err := l.read()
	if err != nil {
		return 0, Record{}, err
	}
	for _, r := range records {
		if r.Name == rec.Name && r.Date == rec.Date {
			return AlreadyMarked, r, nil
		}
	}

	records = append(records, rec)
	if err := l.write(records); err != nil {
		return 0, Record{}, err
	}
	return Marked, rec, nil
}

// Records returns every row in insertion order.
func (l *Ledger) Records(ctx context.Context) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.read()
}

// Export writes the ledger in its CSV file format.
func (l *Ledger) Export(ctx context.Context, w io.Writer) error {
	records, err := l.Records(ctx)
	if err != nil {
		return err
	}
	data, err := EncodeCSV(records)
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

// EncodeCSV renders records with the Name,Date,Time header.
func EncodeCSV(records []Record) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(header); err != nil {
		return nil, err
	}
	for _, r := range records {
		if err := w.Write([]string{r.Name, r.Date, r.Time}); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DecodeCSV parses the ledger format, validating the header and every Date and Time.
func DecodeCSV(r io.Reader) ([]Record, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = len(header)
	rows, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStorage, err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	if !slices.Equal(rows[0], header) {
		return nil, fmt.Errorf("%w: unexpected header %v", ErrStorage, rows[0])
	}
	records := make([]Record, 0, len(rows)-1)
	for i, row := range rows[1:] {
		rec := Record{Name: row[0], Date: row[1], Time: row[2]}
		if _, err := time.Parse(DateLayout, rec.Date); err != nil {
			return nil, fmt.Errorf("%w: row %d: bad date %q", ErrStorage, i+2, rec.Date)
		}
		if _, err := time.Parse(TimeLayout, rec.Time); err != nil {
			return nil, fmt.Errorf("%w: row %d: bad time %q", ErrStorage, i+2, rec.Time)
		}
		records = append(records, rec)
	}
	return records, nil
}

func (l *Ledger) read() ([]Record, error) {
	f, err := os.Open(l.path)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %w", ErrStorage, l.path, err)
	}
	defer f.Close()
	records, err := DecodeCSV(f)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", l.path, err)
	}
	return records, nil
}

func (l *Ledger) write(records []Record) error {
	data, err := EncodeCSV(records)
	if err != nil {
		return fmt.Errorf("%w: encode: %w", ErrStorage, err)
	}
	if err := renameio.WriteFile(l.path, data, 0o644); err != nil {
		return fmt.Errorf("%w: write %s: %w", ErrStorage, l.path, err)
	}
	return nil
}
