package resolver

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/therickybobbeh/depscan/internal/model"
)

func testResolver() *Resolver {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return NewResolver(log)
}

func TestResolveManifestOnly(t *testing.T) {
	files := map[string]string{
		"package.json": `{"dependencies": {"lodash": "4.17.20"}}`,
	}
	res, err := testResolver().Resolve(files, model.DefaultScanOptions())
	require.NoError(t, err)
	require.Len(t, res.Deps, 1)
	assert.Equal(t, "lodash", res.Deps[0].Name)
	assert.Equal(t, []model.Ecosystem{model.EcosystemNpm}, res.Ecosystems)
}

func TestResolveLockfileWins(t *testing.T) {
	files := map[string]string{
		"package.json": `{"dependencies": {"lodash": "^4.17.0"}}`,
		"package-lock.json": `{
			"lockfileVersion": 2,
			"packages": {
				"": {},
				"node_modules/lodash": {"version": "4.17.21"}
			}
		}`,
	}
	res, err := testResolver().Resolve(files, model.DefaultScanOptions())
	require.NoError(t, err)
	require.Len(t, res.Deps, 1)
	// The lock's pinned version wins; the specifier entry is dropped.
	assert.Equal(t, "4.17.21", res.Deps[0].Version)
}

func TestResolveManifestSupplementsLock(t *testing.T) {
	files := map[string]string{
		"package.json": `{"dependencies": {"lodash": "^4.17.0", "left-pad": "1.3.0"}}`,
		"package-lock.json": `{
			"lockfileVersion": 2,
			"packages": {
				"": {},
				"node_modules/lodash": {"version": "4.17.21"}
			}
		}`,
	}
	res, err := testResolver().Resolve(files, model.DefaultScanOptions())
	require.NoError(t, err)
	names := make(map[string]string)
	for _, d := range res.Deps {
		names[d.Name] = d.Version
	}
	assert.Equal(t, "4.17.21", names["lodash"])
	assert.Equal(t, "1.3.0", names["left-pad"])
}

func TestResolveBothEcosystems(t *testing.T) {
	files := map[string]string{
		"package.json":     `{"dependencies": {"lodash": "4.17.20"}}`,
		"requirements.txt": "requests==2.25.1\n",
	}
	res, err := testResolver().Resolve(files, model.DefaultScanOptions())
	require.NoError(t, err)
	assert.Len(t, res.Deps, 2)
	assert.ElementsMatch(t, []model.Ecosystem{model.EcosystemNpm, model.EcosystemPyPI}, res.Ecosystems)
}

func TestResolveNoUsableFiles(t *testing.T) {
	files := map[string]string{
		"package.json": `{broken`,
	}
	_, err := testResolver().Resolve(files, model.DefaultScanOptions())
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrResolver)
}

func TestResolveMalformedPlusGood(t *testing.T) {
	files := map[string]string{
		"package.json":     `{broken`,
		"requirements.txt": "requests==2.25.1\n",
	}
	res, err := testResolver().Resolve(files, model.DefaultScanOptions())
	require.NoError(t, err)
	assert.Len(t, res.Deps, 1)
	require.NotEmpty(t, res.Warnings)
}

func TestResolveUnsupportedFileWarned(t *testing.T) {
	files := map[string]string{
		"Gemfile.lock":     "GEM\n",
		"requirements.txt": "requests==2.25.1\n",
	}
	res, err := testResolver().Resolve(files, model.DefaultScanOptions())
	require.NoError(t, err)
	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0], "Gemfile.lock")
}

func TestResolveEmptyManifest(t *testing.T) {
	files := map[string]string{
		"package.json": `{"name": "empty"}`,
	}
	res, err := testResolver().Resolve(files, model.DefaultScanOptions())
	require.NoError(t, err)
	assert.Empty(t, res.Deps)
	assert.Equal(t, []model.Ecosystem{model.EcosystemNpm}, res.Ecosystems)
}

func TestDropDevOnly(t *testing.T) {
	deps := []model.Dep{
		model.NewDep(model.EcosystemNpm, "jest", "29.0.0", nil, true),
		model.NewDep(model.EcosystemNpm, "shared", "1.0.0", []string{"jest", "shared"}, true),
		model.NewDep(model.EcosystemNpm, "shared", "1.0.0", []string{"express", "shared"}, false),
		model.NewDep(model.EcosystemNpm, "express", "4.18.0", nil, false),
	}
	out := DropDevOnly(deps)
	names := make(map[string]int)
	for _, d := range out {
		names[d.Name]++
	}
	assert.Zero(t, names["jest"])
	// shared keeps both paths: it is reachable through a non-dev path.
	assert.Equal(t, 2, names["shared"])
	assert.Equal(t, 1, names["express"])
}

func TestDeduplicate(t *testing.T) {
	deps := []model.Dep{
		model.NewDep(model.EcosystemNpm, "a", "1.0.0", nil, false),
		model.NewDep(model.EcosystemNpm, "a", "1.0.0", nil, false),
		model.NewDep(model.EcosystemNpm, "a", "1.0.0", []string{"b", "a"}, false),
	}
	out := Deduplicate(deps)
	assert.Len(t, out, 2)
}

func TestLockfilePriority(t *testing.T) {
	// package-lock.json outranks yarn.lock; v3 outranks v2.
	files := map[string]string{
		"yarn.lock": "lodash@^4.17.0:\n  version \"4.17.19\"\n",
		"package-lock.json": `{
			"lockfileVersion": 3,
			"packages": {
				"": {},
				"node_modules/lodash": {"version": "4.17.21"}
			}
		}`,
	}
	res, err := testResolver().Resolve(files, model.DefaultScanOptions())
	require.NoError(t, err)
	require.Len(t, res.Deps, 1)
	assert.Equal(t, "4.17.21", res.Deps[0].Version)

	var superseded bool
	for _, w := range res.Warnings {
		if w == "yarn.lock: superseded by package-lock.json" {
			superseded = true
		}
	}
	assert.True(t, superseded, "expected a superseded warning for yarn.lock: %v", res.Warnings)
}

func TestPoetryLockPreferredOverPipfile(t *testing.T) {
	files := map[string]string{
		"Pipfile.lock": `{"default": {"requests": {"version": "==2.20.0"}}}`,
		"poetry.lock": `
[[package]]
name = "requests"
version = "2.25.1"
category = "main"
`,
	}
	res, err := testResolver().Resolve(files, model.DefaultScanOptions())
	require.NoError(t, err)
	require.Len(t, res.Deps, 1)
	assert.Equal(t, "2.25.1", res.Deps[0].Version)
}

func TestResolveDevFilter(t *testing.T) {
	files := map[string]string{
		"package.json": `{"dependencies": {"express": "4.18.0"}, "devDependencies": {"jest": "29.0.0"}}`,
	}
	opts := model.ScanOptions{IncludeDevDependencies: false}
	res, err := testResolver().Resolve(files, opts)
	require.NoError(t, err)
	require.Len(t, res.Deps, 1)
	assert.Equal(t, "express", res.Deps[0].Name)
}
