package glob

import "testing"

func TestDefaultExcludesMatchTopLevelNodeModules(t *testing.T) {
	s, err := Compile(nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if s.Match("node_modules/x.js") {
		t.Fatal("expected a top-level node_modules entry to be excluded")
	}
	if s.Match("src/node_modules/x.js") {
		t.Fatal("expected a nested node_modules entry to be excluded")
	}
	if !s.Match("src/main.js") {
		t.Fatal("expected an ordinary source file to be observed")
	}
}

func TestDefaultExcludesMatchTopLevelGit(t *testing.T) {
	s, err := Compile(nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if s.Match(".git/HEAD") {
		t.Fatal("expected a top-level .git entry to be excluded")
	}
}

func TestMatchAbsExcludesTopLevelNodeModules(t *testing.T) {
	s, err := Compile(nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if s.MatchAbs("/tmp/r", "/tmp/r/node_modules/x.js") {
		t.Fatal("expected node_modules under the watch root to be excluded")
	}
}
