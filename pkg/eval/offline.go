// Package eval checks the stance catalog against recorded expectations.
package eval

import (
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"

	"github.com/wilhg/summon/pkg/auth"
	"github.com/wilhg/summon/pkg/errmodel"
	"github.com/wilhg/summon/pkg/runtime"
	"github.com/wilhg/summon/pkg/stance"
)

// Fixtures holds the built-in catalog cases under "fixtures".
//
//go:embed fixtures/*.json
var Fixtures embed.FS

// FixturesDir is the directory of the built-in cases inside Fixtures.
const FixturesDir = "fixtures"

// Fixture is one tool call and what its result must look like.
type Fixture struct {
	Name    string          `json:"name"`
	Catalog string          `json:"catalog,omitempty"`
	Tool    string          `json:"tool"`
	Args    json.RawMessage `json:"args"`
	Expect  Expectation     `json:"expect"`
}

// Expectation lists checks on the result text. ErrorCode expects the call to
// fail with that code instead.
type Expectation struct {
	Equals      *string  `json:"equals,omitempty"`
	Contains    []string `json:"contains,omitempty"`
	NotContains []string `json:"not_contains,omitempty"`
	HasSuffix   string   `json:"has_suffix,omitempty"`
	ErrorCode   string   `json:"error_code,omitempty"`
}

// Report summarizes a fixture run.
type Report struct {
	Total   int
	Passed  int
	Details []string
}

// Score is the pass ratio in [0,1]. An empty run scores 1.
func (r Report) Score() float64 {
	if r.Total == 0 {
		return 1
	}
	return float64(r.Passed) / float64(r.Total)
}

// EvaluateCatalogFixtures loads fixtures from an fs.FS directory (json files)
// and runs each one through eng in a fresh session of the fixture's catalog
// (extended when unset).
func EvaluateCatalogFixtures(ctx context.Context, eng *runtime.Engine, fsys fs.FS, dir string) (Report, error) {
	fixtures, err := loadFixtures(fsys, dir)
	if err != nil {
		return Report{}, err
	}
	if eng == nil {
		eng = runtime.NewEngine(nil)
	}
	rep := Report{Total: len(fixtures)}
	for _, fx := range fixtures {
		problems, err := run(ctx, eng, fx)
		if err != nil {
			return Report{}, fmt.Errorf("fixture %s: %w", fx.Name, err)
		}
		if len(problems) == 0 {
			rep.Passed++
			continue
		}
		for _, p := range problems {
			rep.Details = append(rep.Details, fx.Name+": "+p)
		}
	}
	return rep, nil
}

func run(ctx context.Context, eng *runtime.Engine, fx Fixture) ([]string, error) {
	variant, err := stance.ParseVariant(fx.Catalog)
	if err != nil {
		return nil, err
	}
	reg, err := stance.NewRegistry(variant)
	if err != nil {
		return nil, err
	}
	sess := runtime.NewSession(auth.Principal{Login: "eval"}, reg, "eval")
	defer sess.Close()

	res, callErr := eng.Invoke(ctx, sess, fx.Tool, fx.Args)
	if fx.Expect.ErrorCode != "" {
		if !errmodel.IsCode(callErr, fx.Expect.ErrorCode) {
			return []string{fmt.Sprintf("want error %s, got %v", fx.Expect.ErrorCode, callErr)}, nil
		}
		return nil, nil
	}
	if callErr != nil {
		return []string{"call failed: " + callErr.Error()}, nil
	}

	out := res.String()
	var problems []string
	if fx.Expect.Equals != nil && out != *fx.Expect.Equals {
		problems = append(problems, "result differs:\n"+lineDiff(*fx.Expect.Equals, out))
	}
	for _, s := range fx.Expect.Contains {
		if !strings.Contains(out, s) {
			problems = append(problems, "missing contains: "+s)
		}
	}
	for _, s := range fx.Expect.NotContains {
		if strings.Contains(out, s) {
			problems = append(problems, "unexpected contains: "+s)
		}
	}
	if fx.Expect.HasSuffix != "" && !strings.HasSuffix(out, fx.Expect.HasSuffix) {
		problems = append(problems, "missing suffix: "+fx.Expect.HasSuffix)
	}
	return problems, nil
}

func loadFixtures(fsys fs.FS, dir string) ([]Fixture, error) {
	var out []Fixture
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, err
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		b, err := fs.ReadFile(fsys, path.Join(dir, e.Name()))
		if err != nil {
			return nil, err
		}
		var fx Fixture
		if err := json.Unmarshal(b, &fx); err != nil {
			return nil, fmt.Errorf("%s: %w", e.Name(), err)
		}
		if fx.Name == "" {
			fx.Name = strings.TrimSuffix(e.Name(), ".json")
		}
		out = append(out, fx)
	}
	return out, nil
}
