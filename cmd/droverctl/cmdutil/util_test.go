package cmdutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseCommaSeparatedList(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{"empty", "", nil},
		{"single", "pkg/a.go", []string{"pkg/a.go"}},
		{"multiple", "pkg/a.go,pkg/b.go", []string{"pkg/a.go", "pkg/b.go"}},
		{"trims whitespace", " pkg/a.go , pkg/b.go ", []string{"pkg/a.go", "pkg/b.go"}},
		{"skips empty items", "pkg/a.go,,pkg/b.go,", []string{"pkg/a.go", "pkg/b.go"}},
		{"only separators", ",, ,", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseCommaSeparatedList(tt.input))
		})
	}
}

func TestBoolToYesNo(t *testing.T) {
	assert.Equal(t, "yes", BoolToYesNo(true))
	assert.Equal(t, "no", BoolToYesNo(false))
}

func TestEmptyOr(t *testing.T) {
	assert.Equal(t, "value", EmptyOr("value", "-"))
	assert.Equal(t, "-", EmptyOr("", "-"))
}

func TestGetAuthenticatedClientFromFlags(t *testing.T) {
	original := *Flags
	t.Cleanup(func() { *Flags = original })

	Flags.ServerURL = "http://localhost:8080"
	Flags.Token = "tok"

	client, err := GetAuthenticatedClient()
	assert.NoError(t, err)
	assert.NotNil(t, client)
}
