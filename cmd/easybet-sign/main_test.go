package main

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/easybet/internal/crypto"
)

const testKey = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"

func TestSignPrintsRecoverableHeaders(t *testing.T) {
	var out bytes.Buffer
	body := `{"amount":"1"}`
	err := runSign([]string{
		"-key", testKey, "-method", "POST", "-path", "/api/token/claim", "-body", body, "-json",
	}, &out)
	require.NoError(t, err)

	var headers map[string]string
	require.NoError(t, json.Unmarshal(out.Bytes(), &headers))
	ts, err := strconv.ParseInt(headers[crypto.HeaderTimestamp], 10, 64)
	require.NoError(t, err)

	addr, err := crypto.RecoverRequestSigner("POST", "/api/token/claim", ts, []byte(body), headers[crypto.HeaderSignature])
	require.NoError(t, err)
	assert.Equal(t, headers[crypto.HeaderAddress], addr.Hex())
}

func TestEncryptThenSignWithKeyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wallet.json")
	var out bytes.Buffer
	require.NoError(t, runEncrypt([]string{"-key", testKey, "-password", "pw", "-out", path}, &out))
	assert.Contains(t, out.String(), path)

	out.Reset()
	require.NoError(t, runSign([]string{"-key", "", "-key-file", path, "-password", "pw", "-path", "/api/projects"}, &out))
	assert.Contains(t, out.String(), crypto.HeaderSignature+": 0x")

	err := runSign([]string{"-key", "", "-key-file", path, "-password", "wrong", "-path", "/"}, &out)
	assert.Error(t, err)
}

func TestSignRequiresPath(t *testing.T) {
	err := runSign([]string{"-key", testKey}, &bytes.Buffer{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "-path")
}
