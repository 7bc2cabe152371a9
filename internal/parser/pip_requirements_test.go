package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/therickybobbeh/depscan/internal/model"
)

func TestRequirementsParse(t *testing.T) {
	content := `# production deps
requests==2.25.1
Django>=3.2,<4.0
flask [async]>=2.0  # web framework
urllib3
-r other-requirements.txt
-e git+https://github.com/pallets/click.git#egg=click
--index-url https://pypi.org/simple
PyYAML==5.4.1; python_version >= "3.6"
`

	p := &RequirementsParser{}
	deps, err := p.Parse("requirements.txt", content)
	require.NoError(t, err)

	byName := make(map[string]model.Dep)
	for _, d := range deps {
		byName[d.Name] = d
		assert.True(t, d.IsDirect)
		assert.Equal(t, model.EcosystemPyPI, d.Ecosystem)
	}

	assert.Equal(t, "2.25.1", byName["requests"].Version)
	assert.Equal(t, ">=3.2,<4.0", byName["django"].Version)
	assert.Equal(t, "", byName["urllib3"].Version)
	assert.Equal(t, "5.4.1", byName["pyyaml"].Version)
	assert.Contains(t, byName, "click")

	warnings := p.Warnings()
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0], "other-requirements.txt")
}

func TestRequirementsParseEmpty(t *testing.T) {
	p := &RequirementsParser{}
	deps, err := p.Parse("requirements.txt", "# nothing here\n\n")
	require.NoError(t, err)
	assert.Empty(t, deps)
}

func TestRequirementsNameNormalization(t *testing.T) {
	p := &RequirementsParser{}
	deps, err := p.Parse("requirements.txt", "Flask_SQLAlchemy==2.5.1\n")
	require.NoError(t, err)
	require.Len(t, deps, 1)
	assert.Equal(t, "flask-sqlalchemy", deps[0].Name)
}
