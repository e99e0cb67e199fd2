package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/quire/pkg/domain"
)

func TestParseState(t *testing.T) {
	file := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, os.WriteFile(file, []byte(`{"hasOutline": true, "chaptersTotal": 4}`), 0644))

	want := domain.NewWorldState(map[domain.Fact]domain.Value{
		domain.HasOutline:    domain.Bool(true),
		domain.ChaptersTotal: domain.Int(4),
	})

	tests := []struct {
		name    string
		arg     string
		want    domain.WorldState
		wantErr string
	}{
		{name: "empty", arg: "  ", want: domain.WorldState{}},
		{name: "pairs", arg: "hasOutline=true, chaptersTotal=4", want: want},
		{name: "json", arg: `{"hasOutline": true, "chaptersTotal": 4}`, want: want},
		{name: "file", arg: "@" + file, want: want},
		{name: "missing file", arg: "@" + filepath.Join(t.TempDir(), "nope.json"), wantErr: "failed to read state file"},
		{name: "bad json", arg: `{"hasOutline":`, wantErr: "error parsing state JSON"},
		{name: "no equals", arg: "hasOutline", wantErr: "want fact=value"},
		{name: "bad value", arg: "chaptersTotal=many", wantErr: "chaptersTotal"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseState(tt.arg)
			if tt.wantErr != "" {
				assert.ErrorContains(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(got), "got %s, want %s", got, tt.want)
		})
	}
}
