package main

import (
	"errors"
	"fmt"
	"strconv"
)

// dialect is a language/compiler variant accepted by the judge, carried on
// the wire as a numeric program type id.
type dialect int

// Program type ids as submitted in the programTypeId form field.
const (
	dialectC        dialect = 43
	dialectCXX20    dialect = 73
	dialectCXX17x64 dialect = 61
	dialectCXX17    dialect = 54
	dialectCXX14    dialect = 50
	dialectPython3  dialect = 31
	dialectPython2  dialect = 7
	dialectPypy3    dialect = 41
	dialectPypy2    dialect = 40
	dialectRust2021 dialect = 75
	dialectJava     dialect = 36
)

// id returns the wire form of the program type id.
func (d dialect) id() string {
	return strconv.Itoa(int(d))
}

// errCXX11Removed distinguishes a once-valid dialect from a typo so the
// user gets told why it no longer works.
var errCXX11Removed = errors.New("C++11 support has been removed by Codeforces")

// recognizeCXX maps the accepted spellings of a C++ dialect preference.
func recognizeCXX(d string) (dialect, error) {
	switch d {
	case "c++14", "cxx14", "cpp14", "c++1y", "cxx1y", "cpp1y":
		return dialectCXX14, nil
	case "c++17", "cxx17", "cpp17", "c++1z", "cxx1z", "cpp1z":
		return dialectCXX17, nil
	case "c++17-64", "cxx17-64", "cpp17-64", "c++1z-64", "cxx1z-64", "cpp1z-64":
		return dialectCXX17x64, nil
	case "c++20", "cxx20", "cpp20", "c++2a", "cxx2a", "cpp2a",
		"c++20-64", "cxx20-64", "cpp20-64", "c++2a-64", "cxx2a-64", "cpp2a-64":
		return dialectCXX20, nil
	case "c++11", "cxx11", "cpp11", "c++1x", "cxx1x", "cpp1x":
		return 0, errCXX11Removed
	default:
		return 0, fmt.Errorf("unknown C++ dialect %q", d)
	}
}

// recognizePy maps the accepted spellings of a Python dialect preference.
func recognizePy(d string) (dialect, error) {
	switch d {
	case "py2", "python2", "cpython2":
		return dialectPython2, nil
	case "py3", "python3", "cpython3":
		return dialectPython3, nil
	case "pypy2":
		return dialectPypy2, nil
	case "pypy3":
		return dialectPypy3, nil
	default:
		return 0, fmt.Errorf("unknown Python dialect %q", d)
	}
}

// recognizeRust maps a Rust edition preference.
func recognizeRust(e string) (dialect, error) {
	if e == "2021" {
		return dialectRust2021, nil
	}
	return 0, fmt.Errorf("unknown Rust edition %q", e)
}

// parseDialect resolves an explicit dialect override by canonical name.
func parseDialect(s string) (dialect, error) {
	switch s {
	case "c":
		return dialectC, nil
	case "c++20":
		return dialectCXX20, nil
	case "c++17-64":
		return dialectCXX17x64, nil
	case "c++17":
		return dialectCXX17, nil
	case "c++14":
		return dialectCXX14, nil
	case "py3":
		return dialectPython3, nil
	case "py2":
		return dialectPython2, nil
	case "pypy3":
		return dialectPypy3, nil
	case "pypy2":
		return dialectPypy2, nil
	case "rust2021":
		return dialectRust2021, nil
	case "java":
		return dialectJava, nil
	default:
		return 0, fmt.Errorf("unknown dialect %q", s)
	}
}

// dialectTable resolves source file extensions to program type ids using
// the configured per-family preferences. Stateless after construction.
type dialectTable struct {
	cxx  dialect
	py   dialect
	rust dialect
}

// newDialectTable validates the configured preferences up front so a bad
// config fails before any network activity.
func newDialectTable(cxx, py, rust string) (*dialectTable, error) {
	c, err := recognizeCXX(cxx)
	if err != nil {
		return nil, fmt.Errorf("prefer_cxx: %w", err)
	}
	p, err := recognizePy(py)
	if err != nil {
		return nil, fmt.Errorf("prefer_py: %w", err)
	}
	r, err := recognizeRust(rust)
	if err != nil {
		return nil, fmt.Errorf("prefer_rust: %w", err)
	}
	return &dialectTable{cxx: c, py: p, rust: r}, nil
}

// byExtension maps a source file extension (without the dot) to the
// preferred dialect of its language family.
func (t *dialectTable) byExtension(ext string) (dialect, error) {
	switch ext {
	case "c":
		return dialectC, nil
	case "cc", "cp", "cxx", "cpp", "CPP", "c++", "C":
		return t.cxx, nil
	case "py":
		return t.py, nil
	case "rs":
		return t.rust, nil
	case "java":
		return dialectJava, nil
	default:
		return 0, fmt.Errorf("unknown file extension %q", ext)
	}
}
