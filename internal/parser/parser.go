// Package parser разбирает CSV-экспорт заказов маркетплейса и группирует строки по номеру заказа.
package parser

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode"

	"go.uber.org/zap"
	xunicode "golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/mmeshcher/ordersync/internal/model"
	"github.com/mmeshcher/ordersync/internal/normalize"
)

var (
	// ErrMissingHeader возвращается, если в файле нет строки заголовков.
	ErrMissingHeader = errors.New("missing header row")
	// ErrInvalidKeyColumn возвращается, если первая колонка не является ключевой.
	ErrInvalidKeyColumn = errors.New("unexpected key column")
	// ErrUnreadable возвращается, если файл не удалось прочитать.
	ErrUnreadable = errors.New("unreadable file")
)

// RowWarning описывает пропущенную строку файла.
type RowWarning struct {
	Line   int
	Reason string
}

// Result содержит сгруппированные заказы и предупреждения по пропущенным строкам.
type Result struct {
	Headers  []string
	Groups   []model.OrderGroup
	Warnings []RowWarning
	Rows     int
}

// Parser разбирает файлы экспорта с заданной ключевой колонкой.
type Parser struct {
	keyColumn string
	logger    *zap.Logger
}

// New создаёт парсер. keyColumn сравнивается с нормализованным первым заголовком.
func New(keyColumn string, logger *zap.Logger) *Parser {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Parser{keyColumn: keyColumn, logger: logger}
}

// ParseFile открывает файл и разбирает его.
func (p *Parser) ParseFile(path string) (*Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnreadable, err)
	}
	defer f.Close()

	return p.Parse(f)
}

// Parse разбирает поток. Ошибки заголовка и чтения фатальны для всего файла,
// некорректные строки пропускаются с предупреждением.
func (p *Parser) Parse(r io.Reader) (*Result, error) {
	reader := csv.NewReader(transform.NewReader(r, xunicode.UTF8BOM.NewDecoder()))
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, ErrMissingHeader
	}
	if err != nil {
		return nil, fmt.Errorf("%w: read header: %w", ErrUnreadable, err)
	}

	headers := make([]string, len(header))
	for i, h := range header {
		headers[i] = NormalizeHeader(h)
	}
	if len(headers) == 0 || headers[0] == "" {
		return nil, ErrMissingHeader
	}
	if headers[0] != p.keyColumn {
		return nil, fmt.Errorf("%w: got %q, want %q", ErrInvalidKeyColumn, headers[0], p.keyColumn)
	}

	res := &Result{Headers: headers}
	index := make(map[string]int)

	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var parseErr *csv.ParseError
			if errors.As(err, &parseErr) {
				res.warn(p.logger, parseErr.StartLine, fmt.Sprintf("malformed row: %v", parseErr.Err))
				continue
			}
			return nil, fmt.Errorf("%w: %w", ErrUnreadable, err)
		}
		line, _ := reader.FieldPos(0)

		if len(record) != len(headers) {
			res.warn(p.logger, line, fmt.Sprintf("column count mismatch: got %d, want %d", len(record), len(headers)))
			continue
		}

		raw := model.RawRow{
			Line:    line,
			Headers: headers,
			Values:  make(map[string]string, len(headers)),
		}
		for i, h := range headers {
			raw.Values[h] = strings.TrimSpace(record[i])
		}

		key := NormalizeKey(raw.Values[p.keyColumn])
		if key == "" {
			res.warn(p.logger, line, "missing order id")
			continue
		}
		raw.Values[p.keyColumn] = key

		row := model.NewOrderRow(raw)
		if i, ok := index[key]; ok {
			res.Groups[i].Rows = append(res.Groups[i].Rows, row)
		} else {
			index[key] = len(res.Groups)
			res.Groups = append(res.Groups, model.OrderGroup{ExternalID: key, Rows: []model.OrderRow{row}})
		}
		res.Rows++
	}

	return res, nil
}

func (r *Result) warn(logger *zap.Logger, line int, reason string) {
	r.Warnings = append(r.Warnings, RowWarning{Line: line, Reason: reason})
	logger.Warn("skipping row", zap.Int("line", line), zap.String("reason", reason))
}

// NormalizeHeader удаляет BOM, пробельные и управляющие символы из имени колонки.
func NormalizeHeader(h string) string {
	h = strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) || normalize.IsControl(r) {
			return -1
		}
		return r
	}, h)
	return norm.NFC.String(h)
}

// NormalizeKey обрезает пробелы и удаляет управляющие символы из номера заказа.
func NormalizeKey(k string) string {
	return normalize.StripControl(strings.TrimSpace(k))
}
