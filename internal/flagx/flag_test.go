package flagx

import (
	"os"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFilterArgs(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		allowed []string
		want    []string
	}{
		{
			name:    "keeps flag and its separate value",
			args:    []string{"-c", "vault.json", "-a", ":8080"},
			allowed: []string{"-c", "-config"},
			want:    []string{"-c", "vault.json"},
		},
		{
			name:    "keeps equals form intact",
			args:    []string{"-config=vault.json", "-d", "postgres://x"},
			allowed: []string{"-c", "-config"},
			want:    []string{"-config=vault.json"},
		},
		{
			name:    "drops flags it does not own",
			args:    []string{"-d", "postgres://x", "-s", "key", "positional"},
			allowed: []string{"-c", "-config"},
			want:    []string{},
		},
		{
			name:    "trailing flag without value survives alone",
			args:    []string{"-c"},
			allowed: []string{"-c"},
			want:    []string{"-c"},
		},
		{
			name:    "next dash token is not consumed as a value",
			args:    []string{"-c", "-a"},
			allowed: []string{"-c"},
			want:    []string{"-c"},
		},
		{
			name:    "several owned flags keep their order",
			args:    []string{"-a", ":9090", "-m", "1.2.0", "-t", "20"},
			allowed: []string{"-a", "-t", "-m"},
			want:    []string{"-a", ":9090", "-m", "1.2.0", "-t", "20"},
		},
		{
			name:    "repeated flag kept both times",
			args:    []string{"-c", "one.json", "-c", "two.json"},
			allowed: []string{"-c"},
			want:    []string{"-c", "one.json", "-c", "two.json"},
		},
		{
			name:    "empty input",
			args:    []string{},
			allowed: []string{"-c"},
			want:    []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FilterArgs(tt.args, tt.allowed)
			if !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("FilterArgs() = %#v, want %#v", got, tt.want)
			}
		})
	}
}

func TestJsonConfigFlags(t *testing.T) {
	origArgs := os.Args
	t.Cleanup(func() { os.Args = origArgs })

	t.Run("short form", func(t *testing.T) {
		os.Args = []string{"vaultsync", "-c", "/etc/vaultsync/server.json"}
		assert.Equal(t, "/etc/vaultsync/server.json", JsonConfigFlags())
	})

	t.Run("long form", func(t *testing.T) {
		os.Args = []string{"vaultsync", "-config", "server.json"}
		assert.Equal(t, "server.json", JsonConfigFlags())
	})

	t.Run("no config flag", func(t *testing.T) {
		os.Args = []string{"vaultsync", "-a", ":8080", "-t", "20"}
		assert.Empty(t, JsonConfigFlags())
	})

	t.Run("last occurrence wins", func(t *testing.T) {
		os.Args = []string{"vaultsync", "-c", "a.json", "-config", "b.json"}
		assert.Equal(t, "b.json", JsonConfigFlags())
	})
}
