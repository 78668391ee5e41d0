package logstore

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

const (
	nameTag     = "claun"
	nameExt     = ".txt"
	stampLayout = "20060102_150405"
)

// [<prefix>_]claun_<YYYYMMDD>_<HHMMSS>_<micro>.txt
var namePattern = regexp.MustCompile(`^(?:(.+)_)?claun_(\d{8})_(\d{6})_(\d{6})\.txt$`)

var prefixPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)

// FormatName encodes a record file name in local time.
func FormatName(prefix string, t time.Time) string {
	t = t.Local()
	name := fmt.Sprintf("%s_%s_%06d%s", nameTag, t.Format(stampLayout), t.Nanosecond()/1000, nameExt)
	if prefix != "" {
		name = prefix + "_" + name
	}
	return name
}

// ParseName decodes a record file name. It returns *ParseError when the
// name does not follow the grammar.
func ParseName(name string) (prefix string, ts time.Time, err error) {
	m := namePattern.FindStringSubmatch(name)
	if m == nil {
		return "", time.Time{}, &ParseError{Name: name, Reason: "does not match record grammar"}
	}
	ts, err = time.ParseInLocation(stampLayout, m[2]+"_"+m[3], time.Local)
	if err != nil {
		return "", time.Time{}, &ParseError{Name: name, Reason: "bad timestamp"}
	}
	micros, err := strconv.Atoi(m[4])
	if err != nil {
		return "", time.Time{}, &ParseError{Name: name, Reason: "bad microseconds"}
	}
	return m[1], ts.Add(time.Duration(micros) * time.Microsecond), nil
}

// ValidatePrefix rejects prefixes that could escape the log directory or
// break the grammar.
func ValidatePrefix(prefix string) error {
	if prefix == "" {
		return nil
	}
	if !prefixPattern.MatchString(prefix) || strings.Contains(prefix, "..") {
		return fmt.Errorf("invalid log id prefix %q: use letters, digits, '.', '_' or '-'", prefix)
	}
	return nil
}
