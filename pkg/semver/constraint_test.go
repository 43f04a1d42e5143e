package semver

import (
	"fmt"
	"testing"

	"pgregory.net/rapid"

	qerrors "github.com/matzehuels/quiver/pkg/errors"
)

func TestConstraintCheck(t *testing.T) {
	tests := []struct {
		constraint string
		version    string
		want       bool
	}{
		{"^1.2.0", "1.2.0", true},
		{"^1.2.0", "1.9.9", true},
		{"^1.2.0", "2.0.0", false},
		{"^1.2.0", "1.1.9", false},
		{"^0.3.1", "0.3.9", true},
		{"^0.3.1", "0.4.0", false},
		{"~1.2.0", "1.2.7", true},
		{"~1.2.0", "1.3.0", false},
		{"1.2.3", "1.2.3", true},
		{"=1.2.3", "1.2.4", false},
		{"==1.2.3", "1.2.3", true},
		{"===1.2.3", "1.2.3", true},
		{">=1.2, <2.0", "1.5.0", true},
		{">=1.2, <2.0", "2.0.0", false},
		{">=1.2 <2.0", "1.1.0", false},
		{">= 1.2, < 2.0", "1.2.0", true},
		{"1.2.x", "1.2.99", true},
		{"1.2.*", "1.3.0", false},
		{"==1.2.*", "1.2.5", true},
		{"!=1.3.*", "1.3.2", false},
		{"!=1.3.*", "1.4.0", true},
		{"~=1.4.2", "1.4.9", true},
		{"~=1.4.2", "1.5.0", false},
		{"~=1.4", "1.9.0", true},
		{"~=1.4", "2.0.0", false},
		{"~=0.4", "0.9.1", true},
		{"^1.0 || ^3.0", "3.2.0", true},
		{"^1.0 || ^3.0", "2.2.0", false},
		{"1.0 - 1.4", "1.3.0", true},
		{">=2.0rc1", "2.0.0-rc.2", true},
		{"", "0.0.1", true},
		{"*", "17.0.0", true},
		{"^1.0.0", "1.1.0-beta.1", false},
		{">=1.1.0-beta.1", "1.1.0-beta.2", true},
	}

	for _, tt := range tests {
		t.Run(tt.constraint+"@"+tt.version, func(t *testing.T) {
			c, err := ParseConstraint(tt.constraint)
			if err != nil {
				t.Fatalf("ParseConstraint(%q) error: %v", tt.constraint, err)
			}
			if got := c.Check(MustParse(tt.version)); got != tt.want {
				t.Errorf("%q.Check(%s) = %v, want %v", tt.constraint, tt.version, got, tt.want)
			}
		})
	}
}

func TestParseConstraintInvalid(t *testing.T) {
	for _, in := range []string{">>1.0", "<>1.0", "~=1", "foo", "^", ">=1.0 ||", "@1.0"} {
		t.Run(in, func(t *testing.T) {
			_, err := ParseConstraint(in)
			if err == nil {
				t.Fatalf("ParseConstraint(%q) succeeded, want error", in)
			}
			if !qerrors.Is(err, qerrors.ErrCodeParse) {
				t.Errorf("ParseConstraint(%q) code = %v, want %v", in, qerrors.GetCode(err), qerrors.ErrCodeParse)
			}
		})
	}
}

func TestConstraintString(t *testing.T) {
	if got := MustParseConstraint(" ~=1.4.2 ").String(); got != "~=1.4.2" {
		t.Errorf("String() = %q, want %q", got, "~=1.4.2")
	}
	if got := (Constraint{}).String(); got != "*" {
		t.Errorf("zero String() = %q, want *", got)
	}
	if !Any().IsAny() || !MustParseConstraint("").IsAny() {
		t.Error("Any() and empty constraint should report IsAny")
	}
	if MustParseConstraint("^1").IsAny() {
		t.Error("^1 should not report IsAny")
	}
}

func TestZeroValues(t *testing.T) {
	var c Constraint
	if !c.Check(MustParse("9.9.9")) {
		t.Error("zero constraint should match any version")
	}
	if c.Check(Version{}) {
		t.Error("zero version should satisfy nothing")
	}
}

func TestSatisfiesAll(t *testing.T) {
	cs := []Constraint{MustParseConstraint("^1.2.0"), MustParseConstraint("^1.0.0"), MustParseConstraint("<1.8")}
	if !SatisfiesAll(cs, MustParse("1.7.4")) {
		t.Error("1.7.4 should satisfy all")
	}
	if SatisfiesAll(cs, MustParse("1.1.0")) {
		t.Error("1.1.0 should not satisfy ^1.2.0")
	}
}

func TestPropertyRangeMatchesBounds(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		lo := MustParse(genVersion(t, false))
		hi := MustParse(genVersion(t, false))
		if Compare(lo, hi) >= 0 {
			lo, hi = hi, lo
		}
		v := MustParse(genVersion(t, false))

		c := MustParseConstraint(fmt.Sprintf(">=%s, <%s", lo, hi))
		want := Compare(v, lo) >= 0 && Compare(v, hi) < 0
		if got := Satisfies(c, v); got != want {
			t.Fatalf("Satisfies(>=%s <%s, %s) = %v, want %v", lo, hi, v, got, want)
		}
	})
}

func TestPropertyCaretMatchesMajor(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		base := MustParse(genVersion(t, false))
		if base.Major() == 0 {
			return
		}
		v := MustParse(genVersion(t, false))

		c := MustParseConstraint("^" + base.String())
		want := Compare(v, base) >= 0 && v.Major() == base.Major()
		if got := c.Check(v); got != want {
			t.Fatalf("^%s.Check(%s) = %v, want %v", base, v, got, want)
		}
	})
}

func TestPropertyCompatibleRelease(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		major := rapid.IntRange(0, 20).Draw(t, "major")
		minor := rapid.IntRange(0, 20).Draw(t, "minor")
		v := MustParse(genVersion(t, false))

		base := MustParse(fmt.Sprintf("%d.%d", major, minor))
		c := MustParseConstraint(fmt.Sprintf("~=%d.%d", major, minor))
		want := Compare(v, base) >= 0 && v.Major() == uint64(major)
		if got := c.Check(v); got != want {
			t.Fatalf("~=%d.%d.Check(%s) = %v, want %v", major, minor, v, got, want)
		}
	})
}
