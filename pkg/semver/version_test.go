package semver

import "testing"

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    Version
		wantErr bool
	}{
		{"release", "1.2.3", Version{Major: 1, Minor: 2, Patch: 3}, false},
		{"zero", "0.0.0", Version{}, false},
		{"large components", "10.20.30", Version{Major: 10, Minor: 20, Patch: 30}, false},
		{"pre-release", "1.0.0-alpha.1", Version{Major: 1, Pre: "alpha.1"}, false},
		{"build metadata", "1.0.0+build.5", Version{Major: 1, Build: "build.5"}, false},
		{"pre and build", "1.0.0-rc.1+sha.5114f85", Version{Major: 1, Pre: "rc.1", Build: "sha.5114f85"}, false},
		{"surrounding space", "  1.2.3  ", Version{Major: 1, Minor: 2, Patch: 3}, false},

		{"empty", "", Version{}, true},
		{"two components", "1.2", Version{}, true},
		{"four components", "1.2.3.4", Version{}, true},
		{"leading zero", "01.2.3", Version{}, true},
		{"non-numeric", "1.a.3", Version{}, true},
		{"negative", "1.-2.3", Version{}, true},
		{"empty pre-release", "1.2.3-", Version{}, true},
		{"empty pre identifier", "1.2.3-alpha..1", Version{}, true},
		{"pre leading zero", "1.2.3-01", Version{}, true},
		{"empty build", "1.2.3+", Version{}, true},
		{"v prefix", "v1.2.3", Version{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Parse(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("Parse(%q) = %+v, want %+v", tt.input, got, tt.want)
			}
		})
	}
}

func TestCompare(t *testing.T) {
	// Ascending precedence per SemVer 2.0.0, including the spec's canonical
	// pre-release ordering example.
	ordered := []string{
		"0.0.1",
		"0.9.9",
		"0.10.0",
		"1.0.0-alpha",
		"1.0.0-alpha.1",
		"1.0.0-alpha.beta",
		"1.0.0-beta",
		"1.0.0-beta.2",
		"1.0.0-beta.11",
		"1.0.0-rc.1",
		"1.0.0",
		"1.0.1",
		"1.1.0",
		"2.0.0",
	}

	for i := range ordered {
		for j := range ordered {
			a, b := MustParse(ordered[i]), MustParse(ordered[j])
			want := 0
			if i < j {
				want = -1
			} else if i > j {
				want = 1
			}
			if got := a.Compare(b); got != want {
				t.Errorf("Compare(%s, %s) = %d, want %d", a, b, got, want)
			}
		}
	}
}

func TestCompareIgnoresBuild(t *testing.T) {
	a := MustParse("1.0.0+linux")
	b := MustParse("1.0.0+darwin")
	if !a.Equal(b) {
		t.Errorf("versions differing only in build metadata should be equal")
	}
}

func TestVersionString(t *testing.T) {
	tests := []string{
		"1.2.3",
		"0.0.0",
		"1.0.0-alpha.1",
		"1.0.0+build",
		"2.1.0-rc.2+sha.abc",
	}
	for _, input := range tests {
		if got := MustParse(input).String(); got != input {
			t.Errorf("String() = %q, want %q", got, input)
		}
	}
}

func TestIsPrerelease(t *testing.T) {
	if MustParse("1.0.0").IsPrerelease() {
		t.Error("1.0.0 should not be a pre-release")
	}
	if !MustParse("1.0.0-alpha").IsPrerelease() {
		t.Error("1.0.0-alpha should be a pre-release")
	}
}
