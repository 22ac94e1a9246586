package main

import (
	"errors"
	"testing"
)

func TestRecognizeCXX(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want dialect
	}{
		{"c++14", dialectCXX14},
		{"cxx14", dialectCXX14},
		{"cpp1y", dialectCXX14},
		{"c++17", dialectCXX17},
		{"cpp17", dialectCXX17},
		{"c++1z", dialectCXX17},
		{"c++17-64", dialectCXX17x64},
		{"cxx1z-64", dialectCXX17x64},
		{"c++20", dialectCXX20},
		{"c++2a", dialectCXX20},
		{"c++20-64", dialectCXX20},
		{"cpp2a-64", dialectCXX20},
	}
	for _, tc := range cases {
		got, err := recognizeCXX(tc.in)
		if err != nil {
			t.Errorf("recognizeCXX(%q) error = %v", tc.in, err)
			continue
		}
		if got != tc.want {
			t.Errorf("recognizeCXX(%q) = %d, want %d", tc.in, got, tc.want)
		}
	}
}

func TestRecognizeCXXRemoved(t *testing.T) {
	t.Parallel()

	for _, in := range []string{"c++11", "cxx11", "cpp11", "c++1x", "cxx1x", "cpp1x"} {
		_, err := recognizeCXX(in)
		if !errors.Is(err, errCXX11Removed) {
			t.Errorf("recognizeCXX(%q) error = %v, want errCXX11Removed", in, err)
		}
	}
}

func TestRecognizeCXXUnknown(t *testing.T) {
	t.Parallel()

	if _, err := recognizeCXX("c++23"); err == nil {
		t.Error("recognizeCXX(\"c++23\") expected error, got nil")
	}
}

func TestRecognizePy(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want dialect
	}{
		{"py2", dialectPython2},
		{"python2", dialectPython2},
		{"cpython2", dialectPython2},
		{"py3", dialectPython3},
		{"python3", dialectPython3},
		{"cpython3", dialectPython3},
		{"pypy2", dialectPypy2},
		{"pypy3", dialectPypy3},
	}
	for _, tc := range cases {
		got, err := recognizePy(tc.in)
		if err != nil {
			t.Errorf("recognizePy(%q) error = %v", tc.in, err)
			continue
		}
		if got != tc.want {
			t.Errorf("recognizePy(%q) = %d, want %d", tc.in, got, tc.want)
		}
	}
	if _, err := recognizePy("ironpython"); err == nil {
		t.Error("recognizePy(\"ironpython\") expected error, got nil")
	}
}

func TestParseDialect(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want dialect
	}{
		{"c", dialectC},
		{"c++20", dialectCXX20},
		{"c++17-64", dialectCXX17x64},
		{"c++17", dialectCXX17},
		{"c++14", dialectCXX14},
		{"py3", dialectPython3},
		{"py2", dialectPython2},
		{"pypy3", dialectPypy3},
		{"pypy2", dialectPypy2},
		{"rust2021", dialectRust2021},
		{"java", dialectJava},
	}
	for _, tc := range cases {
		got, err := parseDialect(tc.in)
		if err != nil {
			t.Errorf("parseDialect(%q) error = %v", tc.in, err)
			continue
		}
		if got != tc.want {
			t.Errorf("parseDialect(%q) = %d, want %d", tc.in, got, tc.want)
		}
	}
	if _, err := parseDialect("brainfuck"); err == nil {
		t.Error("parseDialect(\"brainfuck\") expected error, got nil")
	}
}

func TestDialectID(t *testing.T) {
	t.Parallel()

	cases := []struct {
		d    dialect
		want string
	}{
		{dialectC, "43"},
		{dialectCXX20, "73"},
		{dialectCXX17x64, "61"},
		{dialectCXX17, "54"},
		{dialectCXX14, "50"},
		{dialectPython3, "31"},
		{dialectPython2, "7"},
		{dialectPypy3, "41"},
		{dialectPypy2, "40"},
		{dialectRust2021, "75"},
		{dialectJava, "36"},
	}
	for _, tc := range cases {
		if got := tc.d.id(); got != tc.want {
			t.Errorf("dialect(%d).id() = %q, want %q", tc.d, got, tc.want)
		}
	}
}

func TestDialectTableByExtension(t *testing.T) {
	t.Parallel()

	table, err := newDialectTable("c++17-64", "pypy3", "2021")
	if err != nil {
		t.Fatalf("newDialectTable() error = %v", err)
	}

	cases := []struct {
		ext  string
		want dialect
	}{
		{"c", dialectC},
		{"cc", dialectCXX17x64},
		{"cp", dialectCXX17x64},
		{"cxx", dialectCXX17x64},
		{"cpp", dialectCXX17x64},
		{"CPP", dialectCXX17x64},
		{"c++", dialectCXX17x64},
		{"C", dialectCXX17x64},
		{"py", dialectPypy3},
		{"rs", dialectRust2021},
		{"java", dialectJava},
	}
	for _, tc := range cases {
		got, err := table.byExtension(tc.ext)
		if err != nil {
			t.Errorf("byExtension(%q) error = %v", tc.ext, err)
			continue
		}
		if got != tc.want {
			t.Errorf("byExtension(%q) = %d, want %d", tc.ext, got, tc.want)
		}
	}

	if _, err := table.byExtension("go"); err == nil {
		t.Error("byExtension(\"go\") expected error, got nil")
	}
}

func TestNewDialectTableRejectsBadPreference(t *testing.T) {
	t.Parallel()

	if _, err := newDialectTable("c++11", "py3", "2021"); !errors.Is(err, errCXX11Removed) {
		t.Errorf("newDialectTable(c++11) error = %v, want errCXX11Removed", err)
	}
	if _, err := newDialectTable("c++17", "py4", "2021"); err == nil {
		t.Error("newDialectTable(py4) expected error, got nil")
	}
	if _, err := newDialectTable("c++17", "py3", "2015"); err == nil {
		t.Error("newDialectTable(2015) expected error, got nil")
	}
}
