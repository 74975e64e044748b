package parser

import "strings"

// lineReplacer fixes tokens the tester writes that would otherwise break field
// parsing: "Automatic" ranges become 0 and the tester's "-NAN" becomes a NaN
// that strconv accepts.
var lineReplacer = strings.NewReplacer(
	"Automatic", "0",
	";-NAN;", ";NaN;",
)

// PreprocessLine normalizes a raw log line before classification. Adjacent
// "-NAN" tokens share a separator, so replacing repeats until the line is
// stable.
func PreprocessLine(line string) string {
	for {
		next := lineReplacer.Replace(line)
		if next == line {
			return line
		}
		line = next
	}
}
