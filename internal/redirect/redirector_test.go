package redirect

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/azalea-rs/azalea-viaversion/internal/proxy"
	pkgerrors "github.com/azalea-rs/azalea-viaversion/pkg/errors"
)

func TestParseServerAddress(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    ServerAddress
		wantErr bool
	}{
		{name: "host only defaults port", in: "mc.example.com", want: ServerAddress{Host: "mc.example.com", Port: 25565}},
		{name: "host and port", in: "mc.example.com:25577", want: ServerAddress{Host: "mc.example.com", Port: 25577}},
		{name: "ip and port", in: "192.0.2.10:1234", want: ServerAddress{Host: "192.0.2.10", Port: 1234}},
		{name: "empty", in: "", wantErr: true},
		{name: "bad port", in: "mc.example.com:notaport", wantErr: true},
		{name: "port out of range", in: "mc.example.com:70000", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseServerAddress(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, pkgerrors.ErrAddressInvalid)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestServerAddressString(t *testing.T) {
	a := ServerAddress{Host: "mc.example.com", Port: 25565}
	assert.Equal(t, "mc.example.com:25565", a.String())
}

func readySupervisor(t *testing.T) *proxy.Supervisor {
	t.Helper()
	script := filepath.Join(t.TempDir(), "fake-proxy.sh")
	body := "#!/bin/sh\necho \"(main) Binding proxy server to /127.0.0.1:0\"\nexec sleep 60\n"
	require.NoError(t, os.WriteFile(script, []byte(body), 0755))

	s := proxy.NewSupervisor(proxy.Config{
		Version:      "1.19.2",
		JavaPath:     script,
		JarPath:      "ViaProxy-test.jar",
		WorkDir:      t.TempDir(),
		ReadyTimeout: 5 * time.Second,
		StopGrace:    200 * time.Millisecond,
	}, nil)
	require.NoError(t, s.Start(context.Background()))
	t.Cleanup(func() { s.Stop(context.Background()) })
	return s
}

func TestRedirectRewritesTarget(t *testing.T) {
	s := readySupervisor(t)
	r := NewRedirector(s, "1.19.2")

	original := ServerAddress{Host: "mc.example.com", Port: 25577}
	target, err := r.Redirect(context.Background(), original, "")
	require.NoError(t, err)

	assert.Equal(t, s.Addr(), target.Addr)
	assert.Equal(t, "mc.example.com\x0725577\x071.19.2\x07", target.Handshake)
	assert.Equal(t, original, target.Intent.Original)
	assert.Equal(t, "1.19.2", target.Intent.Version)
	assert.False(t, target.Intent.CreatedAt.IsZero())
}

func TestRedirectExplicitVersionWins(t *testing.T) {
	s := readySupervisor(t)
	r := NewRedirector(s, "1.19.2")

	target, err := r.Redirect(context.Background(), ServerAddress{Host: "mc.example.com", Port: 25565}, "1.8.9")
	require.NoError(t, err)
	assert.Equal(t, "mc.example.com\x0725565\x071.8.9\x07", target.Handshake)
}

func TestRedirectIntentsAreUnique(t *testing.T) {
	s := readySupervisor(t)
	r := NewRedirector(s, "1.19.2")

	original := ServerAddress{Host: "mc.example.com", Port: 25565}
	first, err := r.Redirect(context.Background(), original, "")
	require.NoError(t, err)
	second, err := r.Redirect(context.Background(), original, "")
	require.NoError(t, err)
	assert.NotEqual(t, first.Intent.ID, second.Intent.ID)
}

func TestRedirectInvalidOriginal(t *testing.T) {
	s := readySupervisor(t)
	r := NewRedirector(s, "1.19.2")

	_, err := r.Redirect(context.Background(), ServerAddress{Host: "", Port: 25565}, "")
	assert.ErrorIs(t, err, pkgerrors.ErrAddressInvalid)

	_, err = r.Redirect(context.Background(), ServerAddress{Host: "mc.example.com", Port: 0}, "")
	assert.ErrorIs(t, err, pkgerrors.ErrAddressInvalid)
}

func TestRedirectWithoutRunningProxy(t *testing.T) {
	s := proxy.NewSupervisor(proxy.Config{Version: "1.19.2", JavaPath: "/bin/sh"}, nil)
	r := NewRedirector(s, "1.19.2")

	_, err := r.Redirect(context.Background(), ServerAddress{Host: "mc.example.com", Port: 25565}, "")
	assert.ErrorIs(t, err, pkgerrors.ErrProxyNotReady)
}

func TestRedirectNeverFallsBackToOriginal(t *testing.T) {
	s := readySupervisor(t)
	r := NewRedirector(s, "1.19.2")
	require.NoError(t, s.Stop(context.Background()))

	target, err := r.Redirect(context.Background(), ServerAddress{Host: "mc.example.com", Port: 25565}, "")
	assert.ErrorIs(t, err, pkgerrors.ErrShuttingDown)
	assert.Empty(t, target.Addr)
}
