package semver

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	mm "github.com/Masterminds/semver/v3"
)

// pep440RE matches PEP 440 public versions with up to three release
// components, plus an optional local segment.
var pep440RE = regexp.MustCompile(`(?i)^v?(\d+(?:\.\d+){0,2})` +
	`(?:[-_.]?(a|alpha|b|beta|c|rc|pre|preview)[-_.]?(\d*))?` +
	`(?:-(\d+)|[-_.]?(post|rev|r)[-_.]?(\d*))?` +
	`(?:[-_.]?(dev)[-_.]?(\d*))?` +
	`(?:\+([a-z0-9]+(?:[-_.][a-z0-9]+)*))?$`)

var releaseRE = regexp.MustCompile(`^v?(\d+(?:\.\d+)*)`)

// operatorRE matches a clause consisting only of an operator, as in ">= 1.2".
var operatorRE = regexp.MustCompile(`^(===|==|~=|!=|<=|>=|=<|=>|<|>|=|\^|~>|~)$`)

var clauseRE = regexp.MustCompile(`^(===|==|~=|!=|<=|>=|=<|=>|<|>|=|\^|~>|~)?(.*)$`)

// normalizePEP440 rewrites a PEP 440 version into semantic version syntax.
// Pre-releases map to pre-release identifiers ("1.0rc1" -> "1.0.0-rc.1"),
// dev releases append "dev.N" ("1.0.dev1" -> "1.0.0-0.dev.1"), and post
// releases and local segments become build metadata, which does not affect
// precedence. [CompareNewest] breaks the resulting ties by post number.
func normalizePEP440(text string) (string, bool) {
	m := pep440RE.FindStringSubmatch(strings.TrimSpace(text))
	if m == nil {
		return "", false
	}

	release := strings.Split(m[1], ".")
	for len(release) < 3 {
		release = append(release, "0")
	}

	var pre []string
	if m[2] != "" {
		pre = append(pre, preLabel(m[2]), numberOr(m[3], "0"))
	}
	if m[7] != "" {
		if len(pre) == 0 {
			// Numeric identifiers sort before alphanumeric ones, which puts
			// "1.0.dev1" ahead of "1.0a1".
			pre = append(pre, "0")
		}
		pre = append(pre, "dev", numberOr(m[8], "0"))
	}

	var build []string
	switch {
	case m[4] != "":
		build = append(build, "post", trimZeros(m[4]))
	case m[5] != "":
		build = append(build, "post", numberOr(m[6], "0"))
	}
	if m[9] != "" {
		build = append(build, strings.FieldsFunc(strings.ToLower(m[9]), func(r rune) bool {
			return r == '.' || r == '-' || r == '_'
		})...)
	}

	out := strings.Join(trimAllZeros(release), ".")
	if len(pre) > 0 {
		out += "-" + strings.Join(pre, ".")
	}
	if len(build) > 0 {
		out += "+" + strings.Join(build, ".")
	}
	return out, true
}

func preLabel(s string) string {
	switch strings.ToLower(s) {
	case "a", "alpha":
		return "a"
	case "b", "beta":
		return "b"
	default:
		return "rc"
	}
}

func numberOr(s, def string) string {
	if s == "" {
		return def
	}
	return trimZeros(s)
}

func trimZeros(s string) string {
	t := strings.TrimLeft(s, "0")
	if t == "" {
		return "0"
	}
	return t
}

func trimAllZeros(parts []string) []string {
	out := make([]string, len(parts))
	for i, p := range parts {
		out[i] = trimZeros(p)
	}
	return out
}

// normalizeConstraint rewrites constraint text into the grammar understood by
// Masterminds: PEP 440 operators are translated, ".*" wildcards become ".x"
// and PEP 440 operands are normalized. Hyphen ranges pass through untouched.
func normalizeConstraint(text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" || text == "*" {
		return "*", nil
	}

	alts := strings.Split(text, "||")
	out := make([]string, 0, len(alts))
	for _, alt := range alts {
		var clauses []string
		for _, term := range strings.Split(alt, ",") {
			term = strings.TrimSpace(term)
			if term == "" {
				continue
			}
			fields := strings.Fields(term)
			if containsHyphenRange(fields) {
				clauses = append(clauses, term)
				continue
			}
			for _, clause := range mergeOperators(fields) {
				c, err := normalizeClause(clause)
				if err != nil {
					return "", err
				}
				clauses = append(clauses, c)
			}
		}
		if len(clauses) == 0 {
			return "", fmt.Errorf("empty constraint alternative")
		}
		out = append(out, strings.Join(clauses, ", "))
	}
	return strings.Join(out, " || "), nil
}

func containsHyphenRange(fields []string) bool {
	for _, f := range fields {
		if f == "-" {
			return true
		}
	}
	return false
}

// mergeOperators joins operator-only fields with the operand that follows.
func mergeOperators(fields []string) []string {
	var out []string
	pending := ""
	for _, f := range fields {
		if operatorRE.MatchString(f) {
			pending += f
			continue
		}
		out = append(out, pending+f)
		pending = ""
	}
	if pending != "" {
		out = append(out, pending)
	}
	return out
}

func normalizeClause(clause string) (string, error) {
	m := clauseRE.FindStringSubmatch(clause)
	op, operand := m[1], strings.TrimSpace(m[2])
	if operand == "" {
		return "", fmt.Errorf("operator %q without version", op)
	}
	if operand == "*" {
		if op == "" || op == "=" || op == "==" {
			return "*", nil
		}
		return "", fmt.Errorf("operator %q cannot take a wildcard", op)
	}
	if strings.ContainsAny(operand[:1], "<>=!~^") {
		return "", fmt.Errorf("unknown operator in %q", clause)
	}

	switch op {
	case "~=":
		return compatibleRelease(operand)
	case "==", "===":
		op = "="
	case "=>":
		op = ">="
	}

	operand = normalizeOperand(operand)
	return op + operand, nil
}

func normalizeOperand(operand string) string {
	if strings.HasSuffix(operand, ".*") {
		return strings.TrimSuffix(operand, ".*") + ".x"
	}
	if _, err := mm.NewVersion(operand); err == nil || strings.ContainsAny(operand, "xX*") {
		return operand
	}
	if norm, ok := normalizePEP440(operand); ok {
		return norm
	}
	return operand
}

// compatibleRelease expands "~=X.Y[.Z]" into its lower and upper bound:
// ">=X.Y.Z, <X.(Y+1)" drops the last release component and bumps the one
// before it.
func compatibleRelease(operand string) (string, error) {
	m := releaseRE.FindStringSubmatch(operand)
	if m == nil {
		return "", fmt.Errorf("invalid compatible release operand %q", operand)
	}
	parts := strings.Split(m[1], ".")
	if len(parts) < 2 {
		return "", fmt.Errorf("compatible release %q needs at least two components", operand)
	}
	upper := parts[:len(parts)-1]
	last, err := strconv.Atoi(upper[len(upper)-1])
	if err != nil {
		return "", err
	}
	upper = append(trimAllZeros(upper[:len(upper)-1]), strconv.Itoa(last+1))
	return ">=" + normalizeOperand(operand) + ", <" + strings.Join(upper, "."), nil
}
