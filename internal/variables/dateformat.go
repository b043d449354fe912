package variables

import (
	"strconv"
	"strings"
	"time"
)

// Default formats for {date}, {time} and {datetime}.
const (
	DefaultDateFormat     = "dd.MM.yyyy"
	DefaultTimeFormat     = "HH:mm"
	DefaultDateTimeFormat = "dd.MM.yyyy HH:mm"
)

// FormatTime renders t with a custom format. A format containing a digit is
// a Go reference layout ("2006-01-02"); anything else is read as a
// .NET-style pattern ("yyyy-MM-dd HH:mm").
func FormatTime(t time.Time, format string) string {
	if strings.ContainsAny(format, "0123456789") {
		return t.Format(format)
	}
	return formatPattern(t, format)
}

func formatPattern(t time.Time, pattern string) string {
	var b strings.Builder
	rs := []rune(pattern)
	for i := 0; i < len(rs); {
		c := rs[i]
		switch c {
		case '\'', '"':
			j := i + 1
			for j < len(rs) && rs[j] != c {
				b.WriteRune(rs[j])
				j++
			}
			i = j + 1
			continue
		case '\\':
			if i+1 < len(rs) {
				b.WriteRune(rs[i+1])
			}
			i += 2
			continue
		}

		n := 1
		for i+n < len(rs) && rs[i+n] == c {
			n++
		}
		if !writeField(&b, t, c, n) {
			b.WriteString(string(rs[i : i+n]))
		}
		i += n
	}
	return b.String()
}

func writeField(b *strings.Builder, t time.Time, c rune, n int) bool {
	switch c {
	case 'y':
		switch {
		case n == 1:
			b.WriteString(strconv.Itoa(t.Year() % 100))
		case n == 2:
			pad(b, t.Year()%100, 2)
		default:
			pad(b, t.Year(), n)
		}
	case 'M':
		switch n {
		case 1:
			b.WriteString(strconv.Itoa(int(t.Month())))
		case 2:
			pad(b, int(t.Month()), 2)
		case 3:
			b.WriteString(t.Month().String()[:3])
		default:
			b.WriteString(t.Month().String())
		}
	case 'd':
		switch n {
		case 1:
			b.WriteString(strconv.Itoa(t.Day()))
		case 2:
			pad(b, t.Day(), 2)
		case 3:
			b.WriteString(t.Weekday().String()[:3])
		default:
			b.WriteString(t.Weekday().String())
		}
	case 'H':
		pad(b, t.Hour(), min(n, 2))
	case 'h':
		h := t.Hour() % 12
		if h == 0 {
			h = 12
		}
		pad(b, h, min(n, 2))
	case 'm':
		pad(b, t.Minute(), min(n, 2))
	case 's':
		pad(b, t.Second(), min(n, 2))
	case 'f', 'F':
		if n > 9 {
			n = 9
		}
		frac := strconv.Itoa(t.Nanosecond() + 1e9)[1 : 1+n]
		if c == 'F' {
			frac = strings.TrimRight(frac, "0")
		}
		b.WriteString(frac)
	case 't':
		ampm := "AM"
		if t.Hour() >= 12 {
			ampm = "PM"
		}
		if n == 1 {
			ampm = ampm[:1]
		}
		b.WriteString(ampm)
	case 'z':
		_, off := t.Zone()
		sign := '+'
		if off < 0 {
			sign = '-'
			off = -off
		}
		b.WriteRune(sign)
		switch n {
		case 1:
			b.WriteString(strconv.Itoa(off / 3600))
		case 2:
			pad(b, off/3600, 2)
		default:
			pad(b, off/3600, 2)
			b.WriteByte(':')
			pad(b, off%3600/60, 2)
		}
	default:
		return false
	}
	return true
}

func pad(b *strings.Builder, v, width int) {
	s := strconv.Itoa(v)
	for i := len(s); i < width; i++ {
		b.WriteByte('0')
	}
	b.WriteString(s)
}
