package normalize

import (
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/ordersync/internal/model"
)

// Defaults задаёт значения по умолчанию: колонка -> значение.
type Defaults map[string]string

// ApplyDefaults подставляет значение по умолчанию для каждого отсутствующего или пустого поля.
func ApplyDefaults(row *model.OrderRow, defaults Defaults, logger *zap.Logger) {
	names := make([]string, 0, len(defaults))
	for name := range defaults {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if strings.TrimSpace(row.Get(name)) != "" {
			continue
		}
		row.Set(name, defaults[name])
		if logger != nil {
			logger.Warn("field missing, using default",
				zap.String("order", row.OrderID),
				zap.Int("line", row.Line),
				zap.String("field", name),
				zap.String("default", defaults[name]),
			)
		}
	}
}

var timeLayouts = []string{
	"02/01/2006 15:04:05",
	"02/01/2006 3:04:05 PM",
	"02/01/2006 15:04",
	"2006-01-02 15:04:05",
	time.RFC3339,
}

// ParseTime разбирает отметку времени в одном из форматов экспорта.
func ParseTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
