package normalize

import (
	"regexp"
	"strings"
	"unicode"
)

const houseNumber = `\(?\d+\s*[a-zA-Z]?(?:\s*[-/]\s*\d+\s*[a-zA-Z]?)?\)?`

var (
	embeddedNumberRe = regexp.MustCompile(`^(.*?)[\s,]+(` + houseNumber + `)$`)
	houseNumberRe    = regexp.MustCompile(`^` + houseNumber + `$`)
)

// SplitStreet отделяет номер дома от названия улицы. Если номер не встроен в улицу,
// используется отдельное поле номера дома, если оно похоже на номер.
// ok == false, если номер определить не удалось.
func SplitStreet(street, number string) (name, houseNo string, ok bool) {
	street = strings.TrimSpace(street)
	number = strings.TrimSpace(number)

	if m := embeddedNumberRe.FindStringSubmatch(street); m != nil && strings.TrimSpace(m[1]) != "" {
		return strings.TrimRight(strings.TrimSpace(m[1]), ","), cleanNumber(m[2]), true
	}

	if houseNumberRe.MatchString(number) {
		return street, cleanNumber(number), true
	}

	return street, "", false
}

func cleanNumber(n string) string {
	n = strings.Trim(n, "()")
	return strings.Join(strings.Fields(n), "")
}

// SplitName делит получателя на имя и фамилию: фамилией считается последнее слово.
func SplitName(recipient string) (first, last string) {
	parts := strings.Fields(recipient)
	if len(parts) > 0 {
		last = parts[len(parts)-1]
		first = strings.Join(parts[:len(parts)-1], " ")
	}
	if first == "" {
		first = "Unknown"
	}
	if last == "" {
		last = "Unknown"
	}
	return first, last
}

// StripControl удаляет управляющие и невидимые форматирующие символы.
func StripControl(s string) string {
	return strings.Map(func(r rune) rune {
		if IsControl(r) {
			return -1
		}
		return r
	}, s)
}

// IsControl сообщает, является ли символ управляющим или форматирующим (BOM, zero-width).
func IsControl(r rune) bool {
	return unicode.IsControl(r) || unicode.Is(unicode.Cf, r)
}
