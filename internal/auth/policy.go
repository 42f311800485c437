package auth

import (
	"bufio"
	_ "embed"
	"fmt"
	"strings"
	"unicode"
)

// MinPasswordLength is the shortest accepted password.
const MinPasswordLength = 8

// maxSimilarity is the quick-ratio threshold above which a password is
// considered derived from a personal attribute.
const maxSimilarity = 0.7

//go:embed common_passwords.txt
var commonPasswordsRaw string

var commonPasswords = loadCommonPasswords(commonPasswordsRaw)

func loadCommonPasswords(raw string) map[string]struct{} {
	out := make(map[string]struct{})
	sc := bufio.NewScanner(strings.NewReader(raw))
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" {
			out[strings.ToLower(line)] = struct{}{}
		}
	}
	return out
}

// PasswordContext carries the account attributes a password must not
// resemble.
type PasswordContext struct {
	Email     string
	Username  string
	FirstName string
	LastName  string
}

// CheckPassword returns every policy violation of password, empty when it
// is acceptable.
func CheckPassword(password string, attrs PasswordContext) []string {
	var problems []string
	if attr, ok := similarAttribute(password, attrs); ok {
		problems = append(problems, fmt.Sprintf("The password is too similar to the %s.", attr))
	}
	if len([]rune(password)) < MinPasswordLength {
		problems = append(problems, fmt.Sprintf("This password is too short. It must contain at least %d characters.", MinPasswordLength))
	}
	if len(password) > MaxPasswordBytes {
		problems = append(problems, fmt.Sprintf("This password is too long. It must contain at most %d bytes.", MaxPasswordBytes))
	}
	if _, ok := commonPasswords[strings.ToLower(strings.TrimSpace(password))]; ok {
		problems = append(problems, "This password is too common.")
	}
	if password != "" && strings.IndexFunc(password, func(r rune) bool { return !unicode.IsDigit(r) }) < 0 {
		problems = append(problems, "This password is entirely numeric.")
	}
	return problems
}

func similarAttribute(password string, attrs PasswordContext) (string, bool) {
	if password == "" {
		return "", false
	}
	pw := strings.ToLower(password)
	candidates := []struct {
		name  string
		value string
	}{
		{"username", attrs.Username},
		{"first name", attrs.FirstName},
		{"last name", attrs.LastName},
		{"email address", attrs.Email},
	}
	for _, c := range candidates {
		value := strings.ToLower(strings.TrimSpace(c.value))
		if value == "" {
			continue
		}
		parts := append(strings.FieldsFunc(value, isSeparator), value)
		for _, part := range parts {
			if tooShortToCompare(pw, part) {
				continue
			}
			if quickRatio(pw, part) >= maxSimilarity {
				return c.name, true
			}
		}
	}
	return "", false
}

func isSeparator(r rune) bool {
	return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_'
}

// tooShortToCompare skips attribute fragments that are much shorter than
// the password, where a high ratio would be meaningless.
func tooShortToCompare(password, value string) bool {
	pwLen := len([]rune(password))
	valueLen := len([]rune(value))
	return pwLen >= 10*valueLen && float64(valueLen) < maxSimilarity/2*float64(pwLen)
}

// quickRatio is an upper bound on the similarity of a and b: twice the
// number of shared characters over the combined length.
func quickRatio(a, b string) float64 {
	ra, rb := []rune(a), []rune(b)
	total := len(ra) + len(rb)
	if total == 0 {
		return 1
	}
	avail := make(map[rune]int, len(rb))
	for _, r := range rb {
		avail[r]++
	}
	matches := 0
	for _, r := range ra {
		if avail[r] > 0 {
			avail[r]--
			matches++
		}
	}
	return 2 * float64(matches) / float64(total)
}
