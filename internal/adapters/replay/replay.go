// Package replay implementa una MessageSource finita leída de un fichero de texto,
// para backfills y demos sin Telegram.
//
// Formato: un mensaje por bloque; los bloques se separan por una línea vacía o por
// una línea "---". Si la primera línea de un bloque es "# <RFC3339>", ese es el
// instante de recepción del mensaje; si no, se usa el reloj.
package replay

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/alejandrodnm/signalbot/internal/domain"
	"github.com/alejandrodnm/signalbot/internal/ports"
)

const defaultBatchSize = 50

// Source entrega los mensajes de un fichero en lotes y luego ErrSourceExhausted.
type Source struct {
	name     string
	label    string
	messages []domain.Message
	next     int
	batch    int
	now      func() time.Time
}

// Options configura la source.
type Options struct {
	Label     string // valor de Message.Source; "" → nombre del fichero
	BatchSize int
}

// Open lee y parte el fichero entero.
func Open(path string, opts Options) (*Source, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("replay.Open: %w", err)
	}
	defer f.Close()

	if opts.Label == "" {
		opts.Label = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	src, err := New(f, opts)
	if err != nil {
		return nil, fmt.Errorf("replay.Open: %s: %w", path, err)
	}
	src.name = "replay:" + filepath.Base(path)
	return src, nil
}

// New lee todos los mensajes de r.
func New(r io.Reader, opts Options) (*Source, error) {
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultBatchSize
	}
	if opts.Label == "" {
		opts.Label = "replay"
	}
	s := &Source{name: "replay", label: opts.Label, batch: opts.BatchSize, now: time.Now}

	blocks, err := splitBlocks(r)
	if err != nil {
		return nil, err
	}
	for i, b := range blocks {
		msg := domain.Message{
			ID:     strconv.Itoa(i + 1),
			Source: s.label,
		}
		if ts, rest, ok := leadingTimestamp(b); ok {
			msg.ReceivedAt = ts
			b = rest
		}
		msg.Text = b
		if strings.TrimSpace(msg.Text) == "" {
			continue
		}
		s.messages = append(s.messages, msg)
	}
	return s, nil
}

// Name identifica la source en logs y métricas.
func (s *Source) Name() string { return s.name }

// Len devuelve el total de mensajes del fichero.
func (s *Source) Len() int { return len(s.messages) }

// Poll devuelve el siguiente lote; cuando no quedan, ports.ErrSourceExhausted.
func (s *Source) Poll(ctx context.Context) ([]domain.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.next >= len(s.messages) {
		return nil, ports.ErrSourceExhausted
	}
	end := min(s.next+s.batch, len(s.messages))
	out := make([]domain.Message, 0, end-s.next)
	for _, m := range s.messages[s.next:end] {
		if m.ReceivedAt.IsZero() {
			m.ReceivedAt = s.now().UTC()
		}
		out = append(out, m)
	}
	s.next = end
	return out, nil
}

func splitBlocks(r io.Reader) ([]string, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)

	var blocks []string
	var cur []string
	flush := func() {
		if len(cur) > 0 {
			blocks = append(blocks, strings.Join(cur, "\n"))
			cur = nil
		}
	}
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), "\r")
		if t := strings.TrimSpace(line); t == "" || t == "---" {
			flush()
			continue
		}
		cur = append(cur, line)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("scan: %w", err)
	}
	flush()
	return blocks, nil
}

func leadingTimestamp(block string) (time.Time, string, bool) {
	first, rest, _ := strings.Cut(block, "\n")
	if !strings.HasPrefix(first, "# ") {
		return time.Time{}, block, false
	}
	ts, err := time.Parse(time.RFC3339, strings.TrimSpace(first[2:]))
	if err != nil {
		return time.Time{}, block, false
	}
	return ts.UTC(), rest, true
}
