package store

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"
)

// VoltageHeader is the first row of every voltage log.
var VoltageHeader = []string{"Date", "Sense", "Average"}

// VoltageLog appends battery samples to a CSV file, creating it with a header
// on first use.
type VoltageLog struct {
	path string
	now  func() time.Time

	mu sync.Mutex
}

func NewVoltageLog(path string) *VoltageLog {
	return &VoltageLog{path: path, now: time.Now}
}

func (v *VoltageLog) Path() string { return v.path }

// Append writes one row of sense and average volts.
func (v *VoltageLog) Append(sense, average float64) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if dir := filepath.Dir(v.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("store: voltage log dir: %w", err)
		}
	}
	_, statErr := os.Stat(v.path)
	fresh := os.IsNotExist(statErr)

	f, err := os.OpenFile(v.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("store: voltage log open: %w", err)
	}
	defer f.Close()

	if fresh {
		w := csv.NewWriter(f)
		if err := w.Write(VoltageHeader); err != nil {
			return fmt.Errorf("store: voltage log header: %w", err)
		}
		w.Flush()
		if err := w.Error(); err != nil {
			return fmt.Errorf("store: voltage log header: %w", err)
		}
	}
	if _, err := f.WriteString(voltageRow(v.now(), sense, average)); err != nil {
		return fmt.Errorf("store: voltage log row: %w", err)
	}
	return nil
}

// voltageRow formats `"<date>",s.sss,a.aaa`. The date is always quoted;
// csv.Writer only quotes fields that need it.
func voltageRow(at time.Time, sense, average float64) string {
	date := strings.ReplaceAll(at.Format(time.UnixDate), `"`, `""`)
	return `"` + date + `",` +
		strconv.FormatFloat(sense, 'f', 3, 64) + "," +
		strconv.FormatFloat(average, 'f', 3, 64) + "\n"
}

// Rows reads back every data row (header excluded).
func (v *VoltageLog) Rows() ([][]string, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	f, err := os.Open(v.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: voltage log open: %w", err)
	}
	defer f.Close()
	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("store: voltage log parse: %w", err)
	}
	if len(records) > 0 {
		records = records[1:]
	}
	return records, nil
}
