package storage

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/alejandrodnm/signalbot/internal/domain"
	"github.com/alejandrodnm/signalbot/internal/ports"
)

// Columnas canónicas de cada tabla. Los CSV heredados con otro orden o columnas
// extra se normalizan a este set al leer.
var tableColumns = map[string][]string{
	ports.TableVerified: {
		"period_id", "timestamp", "source", "coin", "color", "number",
		"direction", "quantity", "verified", "confidence",
	},
	ports.TableHistorical: {
		"period_id", "timestamp", "source", "coin", "color", "number",
		"direction", "result", "quantity",
	},
	ports.TablePeriods: {"period_id"},
}

// legacyTimeLayout es el formato de timestamp de los CSV antiguos.
const legacyTimeLayout = "2006-01-02 15:04:05"

// Table es una tabla ordenada de filas string, tal cual se guarda en un blob CSV.
type Table struct {
	Columns []string
	Rows    [][]string
}

// NewTable crea una tabla vacía con las columnas canónicas de name.
func NewTable(name string) Table {
	return Table{Columns: append([]string(nil), tableColumns[name]...)}
}

// Len devuelve el número de filas.
func (t Table) Len() int { return len(t.Rows) }

// Get devuelve el valor de la columna col en la fila i, "" si no existe.
func (t Table) Get(i int, col string) string {
	for j, c := range t.Columns {
		if c == col {
			if j < len(t.Rows[i]) {
				return t.Rows[i][j]
			}
			return ""
		}
	}
	return ""
}

// PeriodIDs devuelve el set de period_id presentes y el máximo.
func (t Table) PeriodIDs() (map[int64]bool, int64, error) {
	ids := make(map[int64]bool, len(t.Rows))
	var maxID int64
	for i := range t.Rows {
		raw := t.Get(i, "period_id")
		if raw == "" {
			continue
		}
		id, err := parsePeriodID(raw)
		if err != nil {
			return nil, 0, fmt.Errorf("row %d: %w", i, err)
		}
		ids[id] = true
		if id > maxID {
			maxID = id
		}
	}
	return ids, maxID, nil
}

// RowByPeriod devuelve la primera fila con ese period_id.
func (t Table) RowByPeriod(id int64) ([]string, bool, error) {
	for i := range t.Rows {
		raw := t.Get(i, "period_id")
		if raw == "" {
			continue
		}
		got, err := parsePeriodID(raw)
		if err != nil {
			return nil, false, fmt.Errorf("row %d: %w", i, err)
		}
		if got == id {
			return t.Rows[i], true, nil
		}
	}
	return nil, false, nil
}

// canonical reordena las columnas al set canónico; las que faltan quedan vacías.
func (t Table) canonical(name string) Table {
	cols := tableColumns[name]
	out := Table{Columns: append([]string(nil), cols...), Rows: make([][]string, 0, len(t.Rows))}
	for i := range t.Rows {
		row := make([]string, len(cols))
		for j, c := range cols {
			row[j] = t.Get(i, c)
		}
		out.Rows = append(out.Rows, row)
	}
	return out
}

func encodeCSV(t Table) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(t.Columns); err != nil {
		return nil, err
	}
	if err := w.WriteAll(t.Rows); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeCSV(data []byte) (Table, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return Table{}, nil
	}
	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		return Table{}, fmt.Errorf("decode csv: %w", err)
	}
	if len(records) == 0 {
		return Table{}, nil
	}
	header := records[0]
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}
	return Table{Columns: header, Rows: records[1:]}, nil
}

// --- conversión fila ↔ dominio ---

func verifiedRow(v domain.VerifiedSignal) []string {
	return []string{
		strconv.FormatInt(v.PeriodID, 10),
		formatTime(v.Timestamp),
		v.Source,
		v.Coin,
		v.Color,
		v.Number,
		v.Direction,
		formatFloat(v.Quantity),
		strconv.FormatBool(v.Verified),
		formatFloat(v.Confidence),
	}
}

func historicalRow(h domain.HistoricalRecord) []string {
	return []string{
		strconv.FormatInt(h.PeriodID, 10),
		formatTime(h.Timestamp),
		h.Source,
		h.Coin,
		h.Color,
		h.Number,
		h.Direction,
		strconv.FormatBool(h.Result),
		formatFloat(h.Quantity),
	}
}

func periodRow(id int64) []string {
	return []string{strconv.FormatInt(id, 10)}
}

func verifiedFromTable(t Table) ([]domain.VerifiedSignal, error) {
	out := make([]domain.VerifiedSignal, 0, t.Len())
	for i := range t.Rows {
		var v domain.VerifiedSignal
		var err error
		if v.PeriodID, err = parsePeriodIDOrZero(t.Get(i, "period_id")); err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		if v.Timestamp, err = parseTime(t.Get(i, "timestamp")); err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		v.Source = t.Get(i, "source")
		v.Coin = t.Get(i, "coin")
		v.Color = t.Get(i, "color")
		v.Number = t.Get(i, "number")
		v.Direction = t.Get(i, "direction")
		if v.Direction == "" {
			v.Direction = v.Color
		}
		v.Quantity = parseFloatOr(t.Get(i, "quantity"), 1.0)
		v.Verified = parseBool(t.Get(i, "verified"))
		v.Confidence = parseFloatOr(t.Get(i, "confidence"), 0)
		out = append(out, v)
	}
	return out, nil
}

func historicalFromTable(t Table) ([]domain.HistoricalRecord, error) {
	out := make([]domain.HistoricalRecord, 0, t.Len())
	for i := range t.Rows {
		var h domain.HistoricalRecord
		var err error
		if h.PeriodID, err = parsePeriodIDOrZero(t.Get(i, "period_id")); err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		if h.Timestamp, err = parseTime(t.Get(i, "timestamp")); err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		h.Source = t.Get(i, "source")
		h.Coin = t.Get(i, "coin")
		h.Color = t.Get(i, "color")
		h.Number = t.Get(i, "number")
		h.Direction = t.Get(i, "direction")
		h.Result = parseBool(t.Get(i, "result"))
		h.Quantity = parseFloatOr(t.Get(i, "quantity"), 1.0)
		out = append(out, h)
	}
	return out, nil
}

func periodsFromTable(t Table) ([]domain.PeriodRecord, error) {
	out := make([]domain.PeriodRecord, 0, t.Len())
	for i := range t.Rows {
		raw := t.Get(i, "period_id")
		if raw == "" {
			continue
		}
		id, err := parsePeriodID(raw)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		out = append(out, domain.PeriodRecord{PeriodID: id})
	}
	return out, nil
}

// --- helpers de formato ---

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.UTC(), nil
	}
	if t, err := time.ParseInLocation(legacyTimeLayout, s, time.UTC); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("parse timestamp %q", s)
}

// formatFloat usa la representación más corta que hace round-trip exacto.
func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func parseFloatOr(s string, def float64) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return def
	}
	return f
}

// parseBool acepta true/false, True/False (pandas) y 1/0.
func parseBool(s string) bool {
	b, err := strconv.ParseBool(strings.TrimSpace(s))
	return err == nil && b
}

// parsePeriodID acepta enteros y floats enteros ("12.0", pandas tras un NaN).
func parsePeriodID(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if id, err := strconv.ParseInt(s, 10, 64); err == nil {
		return id, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f != float64(int64(f)) {
		return 0, fmt.Errorf("invalid period_id %q", s)
	}
	return int64(f), nil
}

func parsePeriodIDOrZero(s string) (int64, error) {
	if strings.TrimSpace(s) == "" {
		return 0, nil
	}
	return parsePeriodID(s)
}
