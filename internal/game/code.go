package game

// CodeLength is the number of digits in a join code.
const CodeLength = 6

// SanitizeCode keeps only ASCII digits from input and truncates the result
// to CodeLength, mirroring what the join-code field accepts as the user types.
func SanitizeCode(input string) string {
	out := make([]byte, 0, CodeLength)
	for i := 0; i < len(input) && len(out) < CodeLength; i++ {
		if c := input[i]; c >= '0' && c <= '9' {
			out = append(out, c)
		}
	}
	return string(out)
}

// ValidCode reports whether code is exactly CodeLength ASCII digits.
func ValidCode(code string) bool {
	if len(code) != CodeLength {
		return false
	}
	for i := 0; i < len(code); i++ {
		if code[i] < '0' || code[i] > '9' {
			return false
		}
	}
	return true
}
