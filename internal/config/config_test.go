package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mm2d/go-upnp/upnp"
)

func writeTempFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadFile_HCLByExtension(t *testing.T) {
	path := writeTempFile(t, "cp.hcl", `
protocol = "ipv4"
notify_segment_check = true
`)

	opts, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, upnp.IPv4Only, opts.Protocol)
	assert.True(t, opts.NotifySegmentCheck)
}

func TestLoadFile_JSONByExtension(t *testing.T) {
	path := writeTempFile(t, "cp.json", `{"protocol": "ipv6", "notify_segment_check": false}`)

	opts, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, upnp.IPv6Only, opts.Protocol)
	assert.False(t, opts.NotifySegmentCheck)
}

func TestLoadFile_DefaultProtocolIsDualStack(t *testing.T) {
	path := writeTempFile(t, "cp.hcl", ``)

	opts, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, upnp.DualStack, opts.Protocol)
}

func TestLoadFile_UnknownProtocolFails(t *testing.T) {
	path := writeTempFile(t, "cp.hcl", `protocol = "bogus"`)

	_, err := LoadFile(path)
	assert.Error(t, err)
}

func TestLoadFile_UnknownInterfaceFails(t *testing.T) {
	path := writeTempFile(t, "cp.hcl", `interfaces = ["definitely-not-a-real-interface-0"]`)

	_, err := LoadFile(path)
	assert.Error(t, err)
}

func TestLoadFile_ExtensionlessTriesHCLThenJSON(t *testing.T) {
	path := writeTempFile(t, "cp.conf", `{"protocol": "ipv4"}`)

	opts, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, upnp.IPv4Only, opts.Protocol)
}

func TestLoadFile_MissingFileFails(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "missing.hcl"))
	assert.Error(t, err)
}
